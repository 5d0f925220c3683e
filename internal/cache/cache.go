package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"expenses.durgadawaghar.com/internal/store"
)

// DefaultTTL is how long a user's expense listing stays cached
const DefaultTTL = 60 * time.Second

// Redis caches per-user expense listings
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr, which may be a redis:// URL or host:port
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Key is the cache key for a user's listing
func Key(phone string) string {
	return "expenses:" + phone
}

// GetExpenses returns the cached listing for phone, if present
func (c *Redis) GetExpenses(ctx context.Context, phone string) ([]store.Expense, bool) {
	data, err := c.client.Get(ctx, Key(phone)).Bytes()
	if err != nil {
		return nil, false
	}
	expenses, err := decodeExpenses(data)
	if err != nil {
		return nil, false
	}
	return expenses, true
}

// SetExpenses caches a listing for phone
func (c *Redis) SetExpenses(ctx context.Context, phone string, expenses []store.Expense) error {
	data, err := encodeExpenses(expenses)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(phone), data, c.ttl).Err()
}

// Invalidate drops the cached listing for phone
func (c *Redis) Invalidate(ctx context.Context, phone string) error {
	return c.client.Del(ctx, Key(phone)).Err()
}

// Close closes the underlying client
func (c *Redis) Close() error {
	return c.client.Close()
}

func encodeExpenses(expenses []store.Expense) ([]byte, error) {
	if expenses == nil {
		expenses = []store.Expense{}
	}
	data, err := json.Marshal(expenses)
	if err != nil {
		return nil, fmt.Errorf("encoding expenses: %w", err)
	}
	return data, nil
}

func decodeExpenses(data []byte) ([]store.Expense, error) {
	expenses := []store.Expense{}
	if err := json.Unmarshal(data, &expenses); err != nil {
		return nil, fmt.Errorf("decoding expenses: %w", err)
	}
	return expenses, nil
}
