package service

import (
	"context"
	"testing"
	"time"

	"commerce-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	st := store.NewStoreWithDB(db)
	sequencer := NewInvoiceSequencer(nil, st, 1000)

	return NewOrderService(st, nil, sequencer, nil, 0), mock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func itemColumns() []string {
	return []string{"id", "name", "price", "discount", "quantity", "is_bundle", "created_at", "updated_at"}
}

func itemRow(id int64, name, price string, quantity int, isBundle bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(itemColumns()).AddRow(id, name, price, "0", quantity, isBundle, now, now)
}

func orderColumns() []string {
	return []string{"id", "invoice_code", "status", "item_subtotal", "shipping_charge",
		"total_amount", "discount", "user_name", "phone", "address", "created_at", "updated_at"}
}

func orderRow(id int64, invoice string, total string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderColumns()).
		AddRow(id, invoice, 0, total, "0", total, "0", "", "", "", now, now)
}

func paymentColumns() []string {
	return []string{"id", "order_id", "status", "amount", "padi_amount", "payment_type", "created_at", "updated_at"}
}

func paymentRow(id, orderID int64, status int, amount, padi string, paymentType int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentColumns()).
		AddRow(id, orderID, status, amount, padi, paymentType, now, now)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(itemRow(7, "Widget", "100", 1, false))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products:    []CartLine{{ProductID: 7, Quantity: 5}},
		PaymentType: 1,
		Total:       dec("500"),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(7), stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	// No order, line or payment insert may have reached the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderFailureOnLaterLineUndoesEarlierDecrement(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(itemRow(1, "First", "50", 10, false))
	mock.ExpectExec(`UPDATE items SET quantity = quantity - \$1`).
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(2)).
		WillReturnRows(itemRow(2, "Second", "80", 0, false))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products: []CartLine{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		PaymentType: 1,
		Total:       dec("180"),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderUnknownProductRejected(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(itemColumns()))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products:    []CartLine{{ProductID: 99, Quantity: 1}},
		PaymentType: 1,
		Total:       dec("10"),
	})

	var productErr *UnknownProductError
	require.ErrorAs(t, err, &productErr)
	assert.Equal(t, int64(99), productErr.ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderSimpleItem(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(itemRow(7, "Widget", "100", 10, false))
	mock.ExpectExec(`UPDATE items SET quantity = quantity - \$1`).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// No Redis counter wired in tests, so sequencing falls back to the
	// newest persisted code; an empty table starts the sequence at ZT1000.
	mock.ExpectQuery(`SELECT invoice_code FROM orders ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_code"}))

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(41, now, now))
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))
	mock.ExpectCommit()

	order, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products:    []CartLine{{ProductID: 7, Quantity: 2}},
		PaymentType: 1,
		Total:       dec("200"),
	})

	require.NoError(t, err)
	assert.Equal(t, "ZT1000", order.InvoiceCode)
	assert.Equal(t, 0, order.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderBundleDecrementsComponentsOnly(t *testing.T) {
	// Item 1 is component A (price 100, stock 10); item 2 is bundle B made
	// of 2xA. Buying 2 bundles consumes 4 units of A and leaves B's own
	// quantity untouched, and the B line is stored twice: the unit-price
	// row and the bundle-total row.
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(2)).
		WillReturnRows(itemRow(2, "Bundle B", "180", 5, true))

	mock.ExpectQuery(`SELECT invoice_code FROM orders ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_code"}).AddRow("ZT1041"))

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))

	// Unit-price row for the bundle line.
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WithArgs(int64(42), int64(2), nil, 2, "180").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	mock.ExpectQuery(`SELECT \* FROM bundle_items WHERE bundle_item_id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "bundle_item_id", "item_id", "bundle_quantity"}).
			AddRow(1, 2, 1, 2))

	// Component A: locked, checked, decremented by 2 bundles x 2 units.
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(itemRow(1, "Component A", "100", 10, false))
	mock.ExpectExec(`UPDATE items SET quantity = quantity - \$1`).
		WithArgs(4, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Bundle-total row: same product, price carries the parent line total.
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WithArgs(int64(42), int64(2), nil, 2, "360").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))
	mock.ExpectCommit()

	order, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products:    []CartLine{{ProductID: 2, Quantity: 2}},
		PaymentType: 1,
		Total:       dec("360"),
	})

	require.NoError(t, err)
	assert.Equal(t, "ZT1042", order.InvoiceCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderMobilePaymentMarkedPending(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(itemRow(7, "Widget", "100", 10, false))
	mock.ExpectExec(`UPDATE items SET quantity = quantity - \$1`).
		WithArgs(1, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT invoice_code FROM orders ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_code"}).AddRow("ZT1000"))

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(43, now, now))
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	// Mobile payments are stored pending (status 4) with a zero collected amount.
	mock.ExpectQuery(`INSERT INTO payments`).
		WithArgs(int64(43), 4, "100", "0", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(6, now, now))
	mock.ExpectCommit()

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderRequest{
		Products:    []CartLine{{ProductID: 7, Quantity: 1}},
		PaymentType: 2,
		Total:       dec("100"),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddProductAppliesIdenticalDeltaToOrderAndPayment(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(itemRow(7, "Widget", "100", 10, false))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(41)).
		WillReturnRows(orderRow(41, "ZT1000", "100"))
	mock.ExpectQuery(`SELECT \* FROM order_lines WHERE order_id = \$1 AND product_id = \$2`).
		WithArgs(int64(41), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}).
			AddRow(9, 41, 7, 1, "100"))
	mock.ExpectExec(`UPDATE order_lines SET quantity = \$1, price = \$2`).
		WithArgs(2, "100", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Ledger parity: the same delta lands on the order and the payment.
	mock.ExpectExec(`UPDATE orders SET total_amount = total_amount \+ \$1`).
		WithArgs("100", int64(41)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM payments WHERE order_id = \$1`).
		WithArgs(int64(41)).
		WillReturnRows(paymentRow(5, 41, 0, "100", "0", 0))
	mock.ExpectExec(`UPDATE payments SET amount = amount \+ \$1`).
		WithArgs("100", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`INSERT INTO activities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(41)).
		WillReturnRows(orderRow(41, "ZT1000", "200"))

	order, err := svc.AddProduct(context.Background(), 41, &AddProductRequest{
		ProductID: 7,
		Quantity:  1,
	}, nil)

	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(dec("200")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLineSubtractsLineTotalFromBothSides(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(41)).
		WillReturnRows(orderRow(41, "ZT1000", "300"))
	mock.ExpectQuery(`SELECT \* FROM order_lines WHERE order_id = \$1 AND product_id = \$2`).
		WithArgs(int64(41), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}).
			AddRow(9, 41, 7, 2, "100"))
	mock.ExpectExec(`DELETE FROM order_lines WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET total_amount = total_amount \+ \$1`).
		WithArgs("-200", int64(41)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM payments WHERE order_id = \$1`).
		WithArgs(int64(41)).
		WillReturnRows(paymentRow(5, 41, 0, "300", "0", 0))
	mock.ExpectExec(`UPDATE payments SET amount = amount \+ \$1`).
		WithArgs("-200", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO activities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(41)).
		WillReturnRows(orderRow(41, "ZT1000", "100"))

	_, err := svc.RemoveLine(context.Background(), 41, 7, nil)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLineMissingProductIsNotFound(t *testing.T) {
	svc, mock := newMockedOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(41)).
		WillReturnRows(orderRow(41, "ZT1000", "300"))
	mock.ExpectQuery(`SELECT \* FROM order_lines WHERE order_id = \$1 AND product_id = \$2`).
		WithArgs(int64(41), int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}))
	mock.ExpectRollback()

	_, err := svc.RemoveLine(context.Background(), 41, 99, nil)

	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLineTotal(t *testing.T) {
	assert.True(t, lineTotal(dec("99.50"), 3).Equal(dec("298.50")))
	assert.True(t, lineTotal(dec("0"), 10).Equal(dec("0")))
}
