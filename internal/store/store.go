package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound marks lookups for rows that do not exist. Callers unwrap it to
// map the failure onto a 404.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Transact runs fn inside a single transaction. Any error from fn rolls the
// whole transaction back; every mutation fn performed is undone together.
func (s *Store) Transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsDuplicateKey reports whether err is a Postgres unique-constraint
// violation.
func IsDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// DuplicateEntrySummary turns a unique-violation error into a human-readable
// message, keeping the raw driver text out of the response envelope.
func DuplicateEntrySummary(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return "", false
	}
	if pqErr.Constraint != "" {
		return fmt.Sprintf("duplicate entry for %s", pqErr.Constraint), true
	}
	return "duplicate entry", true
}

// GetItemByID retrieves an item by ID
func (s *Store) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, "SELECT * FROM items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItems retrieves all items
func (s *Store) GetItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := s.db.SelectContext(ctx, &items, "SELECT * FROM items ORDER BY id")
	return items, err
}

// GetItemForUpdateTx loads an item inside tx with a row lock, so a concurrent
// placement cannot decrement the same stock from a stale read.
func (s *Store) GetItemForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Item, error) {
	var item models.Item
	err := tx.GetContext(ctx, &item, "SELECT * FROM items WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock item %d: %w", id, err)
	}
	return &item, nil
}

// DecrementItemStockTx decrements an item's on-hand quantity inside tx. The
// caller is expected to hold the row lock and to have checked availability.
func (s *Store) DecrementItemStockTx(ctx context.Context, tx *sqlx.Tx, id int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE items SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2",
		quantity, id)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for item %d: %w", id, err)
	}
	return nil
}

// GetBundleComponents retrieves the component definition of a bundle item
func (s *Store) GetBundleComponents(ctx context.Context, bundleItemID int64) ([]models.BundleItem, error) {
	var components []models.BundleItem
	err := s.db.SelectContext(ctx, &components,
		"SELECT * FROM bundle_items WHERE bundle_item_id = $1 ORDER BY item_id", bundleItemID)
	return components, err
}

// GetBundleComponentsTx is GetBundleComponents inside a transaction
func (s *Store) GetBundleComponentsTx(ctx context.Context, tx *sqlx.Tx, bundleItemID int64) ([]models.BundleItem, error) {
	var components []models.BundleItem
	err := tx.SelectContext(ctx, &components,
		"SELECT * FROM bundle_items WHERE bundle_item_id = $1 ORDER BY item_id", bundleItemID)
	return components, err
}

// GetCouponByCode retrieves a coupon by its code
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coupon %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetCouponByID retrieves a coupon by ID
func (s *Store) GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coupon %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetShippingAddress retrieves a shipping address by ID
func (s *Store) GetShippingAddress(ctx context.Context, id int64) (*models.ShippingAddress, error) {
	var addr models.ShippingAddress
	err := s.db.GetContext(ctx, &addr, "SELECT * FROM shipping_addresses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipping address %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
