package connector

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds the retry loop around a single source call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RateLimitFactor multiplies the backoff after a 429.
	RateLimitFactor float64
	// CountRateLimitAsFailure makes an exhausted 429 count against the breaker.
	CountRateLimitAsFailure bool
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	BaseDelay:       time.Second,
	MaxDelay:        30 * time.Second,
	RateLimitFactor: 3,
}

// Backoff returns the delay before retry number attempt+1: base*2^attempt,
// scaled by RateLimitFactor after a 429 and capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int, rateLimited bool) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if rateLimited && p.RateLimitFactor > 1 {
		d *= p.RateLimitFactor
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return rand.N(d/4 + 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
