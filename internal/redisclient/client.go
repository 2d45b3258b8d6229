package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	invoiceSequenceKey = "invoice:sequence"
	idempotencyPrefix  = "idempotency:order:"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SeedInvoiceCounter sets the invoice counter to n only when the counter does
// not exist yet. n is the last used invoice number, not the next one.
func (c *Client) SeedInvoiceCounter(ctx context.Context, n int64) error {
	return c.rdb.SetNX(ctx, invoiceSequenceKey, n, 0).Err()
}

// ForceInvoiceCounter overwrites the invoice counter. Used to resync after a
// duplicate invoice code is detected.
func (c *Client) ForceInvoiceCounter(ctx context.Context, n int64) error {
	return c.rdb.Set(ctx, invoiceSequenceKey, n, 0).Err()
}

// NextInvoiceNumber atomically increments and returns the invoice counter.
// INCR serializes concurrent placements on the counter, so two requests can
// never mint the same number from Redis.
func (c *Client) NextInvoiceNumber(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, invoiceSequenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("invoice counter incr failed: %w", err)
	}
	return n, nil
}

// SetOrderIdempotencyKey records the order created for an idempotency key
func (c *Client) SetOrderIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyPrefix+key, orderID, ttl).Err()
}

// GetOrderIdempotencyKey returns the order already created for an idempotency
// key, if any.
func (c *Client) GetOrderIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return orderID, true, nil
}

// AcquireLock acquires a best-effort distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, "lock:"+lockKey, "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, "lock:"+lockKey).Err()
}
