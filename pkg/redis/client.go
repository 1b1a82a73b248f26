// Package redis wraps go-redis for the shared search-result cache. Every key
// lives under a namespace so flushing never touches keys owned by others.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

const scanBatch = 100

// Client stores opaque byte values under one key namespace.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient connects and verifies the server with a PING.
func NewClient(cfg config.RedisConfig, namespace string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, namespace: namespace}, nil
}

func (c *Client) key(k string) string {
	return c.namespace + k
}

// Load returns the value of k. A missing key is reported as ok=false with a
// nil error.
func (c *Client) Load(ctx context.Context, k string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(k)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return data, true, nil
}

// Store writes k with a TTL; ttl <= 0 keeps it until flushed.
func (c *Client) Store(ctx context.Context, k string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, c.key(k), data, ttl).Err()
}

// Flush unlinks every key of the namespace in batches and returns how many
// were removed.
func (c *Client) Flush(ctx context.Context) (int64, error) {
	var removed int64
	iter := c.rdb.Scan(ctx, 0, c.namespace+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	unlink := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		removed += n
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := unlink(); err != nil {
				return removed, fmt.Errorf("unlinking keys: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning %s*: %w", c.namespace, err)
	}
	if err := unlink(); err != nil {
		return removed, fmt.Errorf("unlinking keys: %w", err)
	}
	return removed, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
