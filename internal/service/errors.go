package service

import (
	"errors"
	"fmt"
)

// Business-rule violations surfaced with a specific message and a 400.
var (
	ErrPaidExceedsAmount = errors.New("paid amount exceeds payment amount")
	ErrInvalidPaidAmount = errors.New("paid amount must not be negative")
	ErrInvalidStatus     = errors.New("invalid status value")
)

// InsufficientStockError aborts an order placement. The whole transaction
// rolls back, so decrements from earlier cart lines never persist.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient quantity for product %s", e.Name)
}

// UnknownProductError rejects a cart line referencing a product that does not
// exist.
type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %d", e.ProductID)
}
