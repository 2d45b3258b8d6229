package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestIsDuplicateKey(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "orders_invoice_code_key"}

	assert.True(t, IsDuplicateKey(dup))
	assert.True(t, IsDuplicateKey(fmt.Errorf("failed to create order: %w", dup)))

	assert.False(t, IsDuplicateKey(nil))
	assert.False(t, IsDuplicateKey(errors.New("boom")))
	assert.False(t, IsDuplicateKey(&pq.Error{Code: "23503"}))
}

func TestDuplicateEntrySummary(t *testing.T) {
	msg, ok := DuplicateEntrySummary(&pq.Error{Code: "23505", Constraint: "coupons_code_key"})
	require.True(t, ok)
	assert.Equal(t, "duplicate entry for coupons_code_key", msg)

	msg, ok = DuplicateEntrySummary(&pq.Error{Code: "23505"})
	require.True(t, ok)
	assert.Equal(t, "duplicate entry", msg)

	_, ok = DuplicateEntrySummary(errors.New("boom"))
	assert.False(t, ok)
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM transitions WHERE payment_id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.Transact(context.Background(), func(tx *sqlx.Tx) error {
		return st.DeleteTransitionsByPaymentTx(context.Background(), tx, 5)
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactRollsBackOnError(t *testing.T) {
	st, mock := newMockedStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.Transact(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestInvoiceCodeEmptyTable(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectQuery(`SELECT invoice_code FROM orders ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_code"}))

	code, err := st.GetLatestInvoiceCode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "", code)
}

func TestGetItemByIDNotFound(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectQuery(`SELECT \* FROM items WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := st.GetItemByID(context.Background(), 99)

	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOrderStatusMissingOrder(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(2, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateOrderStatus(context.Background(), 99, 2)

	require.ErrorIs(t, err, ErrNotFound)
}
