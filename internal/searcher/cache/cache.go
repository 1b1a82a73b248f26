// Package cache memoises search responses. Keys include the index
// generation, so every commit implicitly invalidates older entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Namespace is the Redis key prefix of cached search results.
const Namespace = "docsearch:search:"

// QueryCache is a two-level cache: an in-process LRU in front of an
// optional shared Redis.
type QueryCache struct {
	local  *lru.Cache[string, *executor.SearchResult]
	client *pkgredis.Client
	// remote guards Redis calls so an outage degrades to local-only caching.
	remote *resilience.Breaker
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a cache holding up to size entries locally. client may be nil,
// in which case only the local LRU is used.
func New(client *pkgredis.Client, size int, ttl time.Duration) (*QueryCache, error) {
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New[string, *executor.SearchResult](size)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	return &QueryCache{
		local:  local,
		client: client,
		remote: resilience.NewBreaker("redis-cache", 5, 30*time.Second),
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}, nil
}

// Key derives the cache key of a parsed query at a given index generation.
func Key(q *parser.Query, limit int, generation uint64) string {
	raw := fmt.Sprintf("%s|field=%s|limit=%d|gen=%d", q.String(), q.DefaultField, limit, generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:16])
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if result, ok := c.local.Get(key); ok {
		c.hits.Add(1)
		return result, true
	}
	if c.client == nil {
		c.misses.Add(1)
		return nil, false
	}
	var (
		data []byte
		ok   bool
	)
	err := c.remote.Do(func() error {
		var err error
		data, ok, err = c.client.Load(ctx, key)
		return err
	})
	if err != nil || !ok {
		if err != nil && !errors.Is(err, resilience.ErrOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.local.Add(key, &result)
	c.hits.Add(1)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	c.local.Add(key, result)
	if c.client == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.remote.Do(func() error { return c.client.Store(ctx, key, data, c.ttl) })
	if err != nil && !errors.Is(err, resilience.ErrOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for key or computes it once,
// collapsing concurrent identical misses. computeFn runs detached from the
// cancellation of the caller that started it, so one abandoned request does
// not fail the others waiting on it; the caller's deadline still applies.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	computeFn func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if result, ok := c.local.Get(key); ok {
			return result, nil
		}
		cctx, cancel := detach(ctx)
		defer cancel()
		result, err := computeFn(cctx)
		if err != nil {
			return nil, err
		}
		c.Set(cctx, key, result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	}
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}

// Invalidate drops every cached response, locally and in Redis.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.client == nil {
		return nil
	}
	var deleted int64
	err := c.remote.Do(func() error {
		var err error
		deleted, err = c.client.Flush(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// PurgeLocal drops the in-process entries only.
func (c *QueryCache) PurgeLocal() {
	c.local.Purge()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Remote reports the Redis tier: "disabled" without a client, otherwise the
// breaker state.
func (c *QueryCache) Remote() string {
	if c.client == nil {
		return "disabled"
	}
	return c.remote.State().String()
}
