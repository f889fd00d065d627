// Package cache stores search results in Redis keyed by scope and query, and
// collapses concurrent misses for the same key with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/redis"
)

const keyPrefix = "genome-search:"

// ScopeAll is the scope of cross-genome region searches.
const ScopeAll = "all"

// GenomeScope returns the scope of searches against a single genome.
func GenomeScope(id int64) string {
	return fmt.Sprintf("genome:%d", id)
}

// Backend is the subset of *pkgredis.Client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	backend Backend
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// GetOrCompute returns the cached value for (scope, query, region), or runs
// compute and caches its result. The bool reports a cache hit. Backend
// failures fall through to compute.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, scope, query, region string, compute func() (T, error)) (T, bool, error) {
	key := c.buildKey(scope, query, region)
	if v, ok := lookup[T](ctx, c, key); ok {
		c.recordHit()
		c.logger.Debug("cache hit", "key", key)
		return v, true, nil
	}
	c.recordMiss()

	val, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.store(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func lookup[T any](ctx context.Context, c *ResultCache, key string) (T, bool) {
	var v T
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return v, false
	}
	return v, true
}

func (c *ResultCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate deletes every key in scope. An empty scope clears the whole
// cache.
func (c *ResultCache) Invalidate(ctx context.Context, scope string) (int64, error) {
	pattern := keyPrefix + "*"
	if scope != "" {
		pattern = keyPrefix + scope + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache scope %q: %w", scope, err)
	}
	c.logger.Info("cache invalidated", "scope", scope, "keys_deleted", deleted)
	return deleted, nil
}

// HandleGenomeUploaded is a kafka.MessageHandler for the genome-uploaded
// topic. A new genome can add matches to any cross-genome search, so the
// whole ScopeAll namespace is dropped.
func (c *ResultCache) HandleGenomeUploaded(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[genome.UploadedEvent](value)
	if err != nil {
		c.logger.Warn("skipping malformed upload event", "key", string(key), "error", err)
		return nil
	}
	if _, err := c.Invalidate(ctx, ScopeAll); err != nil {
		return fmt.Errorf("genome %d: %w", event.GenomeID, err)
	}
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the uppercased query with the region so that queries
// differing only in case share an entry.
func (c *ResultCache) buildKey(scope, query, region string) string {
	raw := strings.ToUpper(query) + "|" + region
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, scope, hash[:16])
}
