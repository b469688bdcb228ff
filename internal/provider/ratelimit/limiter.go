package ratelimit

import (
	"sync"
	"time"
)

// Limit is a bucket configuration.
type Limit struct {
	Capacity     int
	RefillPerSec float64
}

// DefaultLimit applies to endpoints that were never configured.
var DefaultLimit = Limit{Capacity: 60, RefillPerSec: 1}

// Limiter keeps one TokenBucket per endpoint. Each bucket has its own lock;
// the map lock is only held to find or create a bucket.
type Limiter struct {
	now func() time.Time

	mu      sync.RWMutex
	buckets map[string]*TokenBucket
}

type Option func(*Limiter)

// WithClock overrides time.Now for every bucket created by the limiter.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{now: time.Now, buckets: map[string]*TokenBucket{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure installs (or replaces) the bucket for endpoint.
func (l *Limiter) Configure(endpoint string, limit Limit) *TokenBucket {
	tb := newTokenBucket(limit.RefillPerSec, limit.Capacity, l.now)
	l.mu.Lock()
	l.buckets[endpoint] = tb
	l.mu.Unlock()
	return tb
}

// Bucket returns the bucket for endpoint, creating it with DefaultLimit.
func (l *Limiter) Bucket(endpoint string) *TokenBucket {
	l.mu.RLock()
	tb, ok := l.buckets[endpoint]
	l.mu.RUnlock()
	if ok {
		return tb
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tb, ok := l.buckets[endpoint]; ok {
		return tb
	}
	tb = newTokenBucket(DefaultLimit.RefillPerSec, DefaultLimit.Capacity, l.now)
	l.buckets[endpoint] = tb
	return tb
}

// Remaining reports the whole tokens currently available for endpoint.
func (l *Limiter) Remaining(endpoint string) int {
	tokens, _ := l.Bucket(endpoint).Snapshot()
	return int(tokens)
}
