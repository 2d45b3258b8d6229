package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"commerce-service/internal/redisclient"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

const invoicePrefix = "ZT"

// ParseInvoiceNumber extracts the numeric suffix of an invoice code such as
// "ZT1042".
func ParseInvoiceNumber(code string) (int64, error) {
	if !strings.HasPrefix(code, invoicePrefix) {
		return 0, fmt.Errorf("invoice code %q has no %s prefix", code, invoicePrefix)
	}
	n, err := strconv.ParseInt(code[len(invoicePrefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invoice code %q has no numeric suffix: %w", code, err)
	}
	return n, nil
}

// FormatInvoiceCode renders an invoice number as a code
func FormatInvoiceCode(n int64) string {
	return fmt.Sprintf("%s%d", invoicePrefix, n)
}

// InvoiceSequencer mints invoice codes. The naive read-then-increment over
// the newest order races under concurrent placement, so the counter lives in
// Redis where INCR serializes it. The orders table keeps a unique constraint
// on invoice_code as the backstop for a counter that fell behind the data
// (flushed Redis, restored database); Resync repairs the counter from the
// newest persisted order after such a collision.
type InvoiceSequencer struct {
	redis  *redisclient.Client
	store  *store.Store
	floor  int64
	logger *zap.Logger
}

// NewInvoiceSequencer creates a sequencer whose first minted code is
// FormatInvoiceCode(floor) when no orders exist yet.
func NewInvoiceSequencer(redis *redisclient.Client, st *store.Store, floor int64) *InvoiceSequencer {
	return &InvoiceSequencer{
		redis:  redis,
		store:  st,
		floor:  floor,
		logger: util.GetLogger(),
	}
}

// Seed initializes the Redis counter from the newest persisted order. Safe to
// call on every startup; an existing counter is left untouched.
func (seq *InvoiceSequencer) Seed(ctx context.Context) error {
	last, err := seq.lastPersistedNumber(ctx)
	if err != nil {
		return err
	}
	if seq.redis == nil {
		return nil
	}
	return seq.redis.SeedInvoiceCounter(ctx, last)
}

// Next mints the next invoice code. When Redis is unavailable it falls back
// to the newest persisted code; the unique constraint still rejects a
// collision, which the caller retries through Resync.
func (seq *InvoiceSequencer) Next(ctx context.Context) (string, error) {
	if seq.redis != nil {
		n, err := seq.redis.NextInvoiceNumber(ctx)
		if err == nil {
			return FormatInvoiceCode(n), nil
		}
		seq.logger.Warn("Invoice counter unavailable, falling back to database read", zap.Error(err))
	}

	last, err := seq.lastPersistedNumber(ctx)
	if err != nil {
		return "", err
	}
	return FormatInvoiceCode(last + 1), nil
}

// Resync forces the Redis counter up to the newest persisted invoice number
func (seq *InvoiceSequencer) Resync(ctx context.Context) error {
	last, err := seq.lastPersistedNumber(ctx)
	if err != nil {
		return err
	}
	if seq.redis == nil {
		return nil
	}
	return seq.redis.ForceInvoiceCounter(ctx, last)
}

func (seq *InvoiceSequencer) lastPersistedNumber(ctx context.Context) (int64, error) {
	code, err := seq.store.GetLatestInvoiceCode(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest invoice code: %w", err)
	}
	if code == "" {
		return seq.floor - 1, nil
	}
	n, err := ParseInvoiceNumber(code)
	if err != nil {
		// Legacy rows may carry hand-entered codes; skip past them.
		seq.logger.Warn("Unparseable invoice code, using floor", zap.String("code", code), zap.Error(err))
		return seq.floor - 1, nil
	}
	return n, nil
}
