package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const redisKeyPrefix = "genome-search:ratelimit:"

// Counter is satisfied by *pkgredis.Client.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisLimiter counts requests per key in fixed windows stored in Redis. If
// Redis cannot be reached the request is allowed.
type RedisLimiter struct {
	counter Counter
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewRedis(counter Counter, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		counter: counter,
		window:  window,
		timeout: 100 * time.Millisecond,
		now:     time.Now,
		logger:  slog.Default().With("component", "redis-ratelimit"),
	}
}

func (l *RedisLimiter) Allow(key string, limit int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	bucket := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, bucket)
	n, err := l.counter.IncrWindow(ctx, redisKey, l.window)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return true
	}
	return n <= int64(limit)
}
