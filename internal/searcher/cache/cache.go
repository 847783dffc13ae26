// Package cache stores search and expansion results in Redis. Identical
// concurrent misses are computed once, and a circuit breaker keeps a failing
// Redis from slowing every request down.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/resilience"
)

// Store is the subset of pkg/redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache holds JSON-encoded values of type T under one key prefix.
type Cache[T any] struct {
	store   Store
	prefix  string
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache writing keys "<prefix>:<hash>". m may be nil.
func New[T any](store Store, prefix string, ttl time.Duration, m *metrics.Metrics) *Cache[T] {
	name := "redis-" + prefix
	return &Cache[T]{
		store:  store,
		prefix: prefix + ":",
		ttl:    ttl,
		breaker: resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, _, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache", "prefix", prefix),
	}
}

// Key hashes the normalized parts into a cache key.
func (c *Cache[T]) Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}

// Get returns the cached value for key. Redis errors and open-circuit
// rejections count as misses.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrNil) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return zero, false
	}
	if data == nil {
		c.miss()
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return zero, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return v, true
}

func (c *Cache[T]) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Set stores v under key. Failures are logged, never returned.
func (c *Cache[T]) Set(ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value or computes, stores and returns it.
// Concurrent callers with the same key share one computation. The boolean
// reports a cache hit.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate deletes every key under the prefix.
func (c *Cache[T]) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, c.prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating %s cache: %w", strings.TrimSuffix(c.prefix, ":"), err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Size counts the keys under the prefix.
func (c *Cache[T]) Size(ctx context.Context) (int64, error) {
	return c.store.CountByPattern(ctx, c.prefix+"*")
}

func (c *Cache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the circuit breaker state.
func (c *Cache[T]) BreakerState() resilience.State {
	return c.breaker.State()
}

// NormalizeQuery canonicalizes a boolean query so that reordered terms map
// to the same key: operator, then sorted terms, then sorted exclusions.
func NormalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0)
	excludes := make([]string, 0)
	queryType := "AND"
	excludeNext := false
	for _, w := range words {
		switch strings.ToUpper(w) {
		case "AND":
			queryType = "AND"
		case "OR":
			queryType = "OR"
		case "NOT":
			excludeNext = true
		default:
			if excludeNext {
				excludes = append(excludes, w)
				excludeNext = false
			} else {
				terms = append(terms, w)
			}
		}
	}

	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{queryType, strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}
