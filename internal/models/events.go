package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced          = "ORDER_PLACED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is published after an order commits. The notification
// worker consumes it to send the customer and admin confirmation mails; the
// placement response never waits on it.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	InvoiceCode   string          `json:"invoice_code"`
	UserID        *int64          `json:"user_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Lines         []OrderLineData `json:"lines"`
}

// OrderStatusChangedEvent is published when an admin moves an order between
// statuses.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64 `json:"order_id"`
	FromStatus int   `json:"from_status"`
	ToStatus   int   `json:"to_status"`
}

// PaymentStatusChangedEvent is published when a payment's status or type
// changes.
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	OrderID     int64           `json:"order_id"`
	Status      int             `json:"status"`
	PaymentType int             `json:"payment_type"`
	Amount      decimal.Decimal `json:"amount"`
}

// OrderLineData represents line data carried in events
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
