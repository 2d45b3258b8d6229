package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateOrderTx inserts a new order inside tx
func (s *Store) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (invoice_code, user_id, shipping_id, status, item_subtotal,
			shipping_charge, total_amount, coupon_id, discount, user_name, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		order.InvoiceCode, order.UserID, order.ShippingID, order.Status,
		order.ItemSubtotal, order.ShippingCharge, order.TotalAmount,
		order.CouponID, order.Discount, order.UserName, order.Phone, order.Address,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdateTx loads an order inside tx with a row lock
func (s *Store) GetOrderForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", id, err)
	}
	return &order, nil
}

// GetLatestInvoiceCode returns the invoice code of the most recently created
// order, or "" when no orders exist. Recency follows creation order, not the
// numeric id.
func (s *Store) GetLatestInvoiceCode(ctx context.Context) (string, error) {
	var code string
	err := s.db.GetContext(ctx, &code,
		"SELECT invoice_code FROM orders ORDER BY created_at DESC, id DESC LIMIT 1")
	if err == sql.ErrNoRows {
		return "", nil
	}
	return code, err
}

// ListOrders retrieves recent orders, optionally filtered by user
func (s *Store) ListOrders(ctx context.Context, userID *int64, limit int) ([]models.Order, error) {
	var orders []models.Order
	if userID != nil {
		err := s.db.SelectContext(ctx, &orders,
			"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", *userID, limit)
		return orders, err
	}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	return orders, err
}

// UpdateOrderStatus updates an order's status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// UpdateOrderStatusTx updates an order's status inside tx
func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// AddOrderTotalTx applies a signed delta to an order's total_amount inside tx
func (s *Store) AddOrderTotalTx(ctx context.Context, tx *sqlx.Tx, orderID int64, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET total_amount = total_amount + $1, updated_at = NOW() WHERE id = $2",
		delta, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order %d total: %w", orderID, err)
	}
	return nil
}

// CreateOrderLineTx inserts an order line inside tx
func (s *Store) CreateOrderLineTx(ctx context.Context, tx *sqlx.Tx, line *models.OrderLine) error {
	query := `
		INSERT INTO order_lines (order_id, product_id, bundle_product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return tx.QueryRowxContext(ctx, query,
		line.OrderID, line.ProductID, line.BundleProductID, line.Quantity, line.Price,
	).Scan(&line.ID)
}

// GetOrderLines retrieves all lines for an order
func (s *Store) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY id", orderID)
	return lines, err
}

// GetOrderLineForUpdateTx loads the unit-price line for a product on an order
// with a row lock, or nil when the product is not on the order. A bundle sale
// stores a second bundle-total row after the unit row, so the earliest row is
// the one line mutations operate on.
func (s *Store) GetOrderLineForUpdateTx(ctx context.Context, tx *sqlx.Tx, orderID, productID int64) (*models.OrderLine, error) {
	var line models.OrderLine
	err := tx.GetContext(ctx, &line,
		"SELECT * FROM order_lines WHERE order_id = $1 AND product_id = $2 ORDER BY id LIMIT 1 FOR UPDATE",
		orderID, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order line: %w", err)
	}
	return &line, nil
}

// UpdateOrderLineTx rewrites a line's quantity and price inside tx
func (s *Store) UpdateOrderLineTx(ctx context.Context, tx *sqlx.Tx, lineID int64, quantity int, price decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE order_lines SET quantity = $1, price = $2 WHERE id = $3",
		quantity, price, lineID)
	return err
}

// DeleteOrderLineTx deletes a line inside tx
func (s *Store) DeleteOrderLineTx(ctx context.Context, tx *sqlx.Tx, lineID int64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM order_lines WHERE id = $1", lineID)
	return err
}

// CreatePaymentTx inserts a payment inside tx
func (s *Store) CreatePaymentTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, status, amount, padi_amount, payment_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		payment.OrderID, payment.Status, payment.Amount, payment.PadiAmount, payment.PaymentType,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentsByOrderID retrieves payments for an order, newest first
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return payments, err
}

// GetPaymentForUpdateTx loads a payment inside tx with a row lock
func (s *Store) GetPaymentForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment %d: %w", id, err)
	}
	return &payment, nil
}

// GetPaymentByOrderForUpdateTx loads the payment for an order with a row
// lock, or nil when the order has none.
func (s *Store) GetPaymentByOrderForUpdateTx(ctx context.Context, tx *sqlx.Tx, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment for order %d: %w", orderID, err)
	}
	return &payment, nil
}

// AddPaymentAmountTx applies a signed delta to a payment's amount inside tx
func (s *Store) AddPaymentAmountTx(ctx context.Context, tx *sqlx.Tx, paymentID int64, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET amount = amount + $1, updated_at = NOW() WHERE id = $2",
		delta, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment %d amount: %w", paymentID, err)
	}
	return nil
}

// UpdatePaymentStatusTx rewrites a payment's status and payment_type inside tx
func (s *Store) UpdatePaymentStatusTx(ctx context.Context, tx *sqlx.Tx, paymentID int64, status, paymentType int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, payment_type = $2, updated_at = NOW() WHERE id = $3",
		status, paymentType, paymentID)
	return err
}

// UpdatePadiAmountTx rewrites a payment's collected amount inside tx
func (s *Store) UpdatePadiAmountTx(ctx context.Context, tx *sqlx.Tx, paymentID int64, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET padi_amount = $1, updated_at = NOW() WHERE id = $2",
		amount, paymentID)
	return err
}

// GetTransitionByPaymentTx loads the transition for a payment inside tx, or
// nil when none exists. Exclusivity is find-or-create, not a constraint.
func (s *Store) GetTransitionByPaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID int64) (*models.Transition, error) {
	var transition models.Transition
	err := tx.GetContext(ctx, &transition,
		"SELECT * FROM transitions WHERE payment_id = $1 ORDER BY id LIMIT 1", paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transition, nil
}

// GetTransitionByPayment loads the transition for a payment, or nil
func (s *Store) GetTransitionByPayment(ctx context.Context, paymentID int64) (*models.Transition, error) {
	var transition models.Transition
	err := s.db.GetContext(ctx, &transition,
		"SELECT * FROM transitions WHERE payment_id = $1 ORDER BY id LIMIT 1", paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transition, nil
}

// CreateTransitionTx inserts a transition inside tx
func (s *Store) CreateTransitionTx(ctx context.Context, tx *sqlx.Tx, transition *models.Transition) error {
	query := `
		INSERT INTO transitions (payment_id, amount)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		transition.PaymentID, transition.Amount,
	).Scan(&transition.ID, &transition.CreatedAt, &transition.UpdatedAt)
}

// UpdateTransitionAmountTx rewrites a transition's amount inside tx
func (s *Store) UpdateTransitionAmountTx(ctx context.Context, tx *sqlx.Tx, transitionID int64, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE transitions SET amount = $1, updated_at = NOW() WHERE id = $2",
		amount, transitionID)
	return err
}

// DeleteTransitionsByPaymentTx removes a payment's transitions inside tx
func (s *Store) DeleteTransitionsByPaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID int64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM transitions WHERE payment_id = $1", paymentID)
	return err
}

// CreateActivityTx appends an audit row inside tx
func (s *Store) CreateActivityTx(ctx context.Context, tx *sqlx.Tx, activity *models.Activity) error {
	query := `
		INSERT INTO activities (relatable_id, type, user_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return tx.QueryRowxContext(ctx, query,
		activity.RelatableID, activity.Type, activity.UserID, activity.Description,
	).Scan(&activity.ID, &activity.CreatedAt)
}

// ListActivities retrieves the audit trail for a row, newest first
func (s *Store) ListActivities(ctx context.Context, relatableID int64, activityType string) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.db.SelectContext(ctx, &activities,
		"SELECT * FROM activities WHERE relatable_id = $1 AND type = $2 ORDER BY created_at DESC",
		relatableID, activityType)
	return activities, err
}
