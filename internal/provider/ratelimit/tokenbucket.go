package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDeadline is returned by Wait when the next token would arrive after the
// context deadline. The caller should skip the call rather than wait.
var ErrDeadline = errors.New("ratelimit: next token arrives after deadline")

// TokenBucket is a lazily refilled token bucket.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
// Refill is computed from elapsed wall-clock time on every access; there is
// no background timer.
type TokenBucket struct {
	rate     float64
	capacity float64
	now      func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, capacity int) *TokenBucket {
	return newTokenBucket(tokensPerSecond, capacity, time.Now)
}

func newTokenBucket(tokensPerSecond float64, capacity int, now func() time.Time) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(capacity),
		now:      now,
		tokens:   float64(capacity), // start full to allow an initial burst
		last:     now(),
	}
}

// refill must be called with tb.mu held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.last).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.last = now
}

// Acquire consumes one token and returns zero when one is available.
// Otherwise nothing is consumed and the time until the next token is returned.
func (tb *TokenBucket) Acquire() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.now())
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	deficit := 1 - tb.tokens
	wait := time.Duration(deficit / tb.rate * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// Wait blocks until a token is consumed, the context is canceled, or the
// next token would only arrive after the context deadline.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait := tb.Acquire()
		if wait == 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && tb.now().Add(wait).After(deadline) {
			return ErrDeadline
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Drain empties the bucket so the next call waits a full refill interval.
// Used after an upstream 429.
func (tb *TokenBucket) Drain() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(tb.now())
	tb.tokens = 0
}

// Snapshot reports the refilled token count and the last refill time.
func (tb *TokenBucket) Snapshot() (tokens float64, lastRefill time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(tb.now())
	return tb.tokens, tb.last
}
