// Package ratelimit provides an in-memory token bucket rate limiter with
// separate buckets per key.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const staleThreshold = 10 * time.Minute

// Result holds the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	RetryAfter int // seconds until next token available; 0 if allowed
}

// Limiter implements a token bucket per key.
type Limiter struct {
	rate  float64 // tokens per second
	burst int     // max tokens (bucket capacity)
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter creates a limiter. rate is tokens per second, burst is the
// maximum bucket capacity. clock is injectable for deterministic testing.
func NewLimiter(rate float64, burst int, clock func() time.Time) *Limiter {
	return &Limiter{
		rate:    rate,
		burst:   burst,
		now:     clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow checks whether a request identified by key should be allowed.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			tokens:   float64(l.burst),
			lastSeen: now,
		}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true}
	}

	deficit := 1.0 - b.tokens
	retryAfter := max(int(math.Ceil(deficit/l.rate)), 1)

	return Result{
		Allowed:    false,
		RetryAfter: retryAfter,
	}
}

// Cleanup removes stale buckets that haven't been seen recently.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleThreshold {
			delete(l.buckets, key)
		}
	}
}

// BucketCount returns the number of active buckets (for testing).
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
