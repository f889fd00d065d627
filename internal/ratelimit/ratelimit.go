// Package ratelimit provides the per-client limiters behind the RateLimit
// middleware: an in-process token bucket and a Redis fixed-window counter
// shared by every replica.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter implements an in-memory token-bucket rate limiter.
// Tokens refill at a rate of (limit / window) per second.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
}

// New creates a rate limiter with the given refill window. Stale entries are
// swept until ctx is cancelled.
func New(ctx context.Context, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		window:  window,
		now:     time.Now,
	}
	go l.cleanup(ctx)
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{
			tokens:    float64(limit - 1),
			lastCheck: now,
		}
		return limit > 0
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(limit) / l.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(limit))
	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

// Reset clears the rate-limit state for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
