// Package connector wraps a provider.Source in the shared call pipeline:
// credentials gate, circuit breaker, rate limiter, bounded timeout,
// response validation and retry with backoff.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"pricequorum/internal/provider"
	"pricequorum/internal/provider/breaker"
	"pricequorum/internal/provider/ratelimit"
)

const (
	DefaultTimeout = 10 * time.Second
	latencyWindow  = 100
)

// errGeoDisabled explains why a geo-blocked connector refuses calls.
var errGeoDisabled = errors.New("disabled until reset")

type outcome int

const (
	succeeded outcome = iota
	failed
	released
)

// Connector is safe for concurrent use. Its mutable state is never shared
// with other connectors.
type Connector struct {
	src     provider.Source
	breaker *breaker.Breaker
	bucket  *ratelimit.TokenBucket
	limiter *ratelimit.Limiter
	policy  RetryPolicy
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	jitter  func(time.Duration) time.Duration

	mu          sync.Mutex
	enabled     bool
	warned      bool
	geoBlocked  bool
	credReview  bool
	lastError   string
	latencies   [latencyWindow]int64
	latencyN    int
	latencyNext int
}

type Option func(*Connector)

// WithEnabled marks the connector as having (or lacking) its credentials.
func WithEnabled(enabled bool) Option {
	return func(c *Connector) { c.enabled = enabled }
}

func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Connector) { c.breaker = b }
}

func WithBucket(tb *ratelimit.TokenBucket) Option {
	return func(c *Connector) { c.bucket = tb }
}

// WithLimiter takes the connector's bucket from l, keyed by source name.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Connector) { c.limiter = l }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Connector) { c.policy = p }
}

// WithTimeout bounds every individual request to the source.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

func New(src provider.Source, opts ...Option) *Connector {
	c := &Connector{
		src:     src,
		enabled: true,
		policy:  DefaultRetryPolicy,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
		now:     time.Now,
		sleep:   sleep,
		jitter:  jitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("connector", src.Name()).Logger()
	if c.breaker == nil {
		c.breaker = breaker.New(src.Name(), breaker.WithClock(c.now), breaker.WithLogger(c.logger))
	}
	if c.bucket == nil && c.limiter != nil {
		c.bucket = c.limiter.Bucket(src.Name())
	}
	if c.bucket == nil {
		c.bucket = ratelimit.NewTokenBucket(ratelimit.DefaultLimit.RefillPerSec, ratelimit.DefaultLimit.Capacity)
	}
	return c
}

func (c *Connector) Name() string { return c.src.Name() }

func (c *Connector) Supports(pair provider.Pair) bool { return c.src.Supports(pair) }

// Available reports whether a call could reach the network right now: the
// connector is enabled, not geo-blocked, and its breaker would admit a call.
func (c *Connector) Available() bool {
	c.mu.Lock()
	ok := c.enabled && !c.geoBlocked
	c.mu.Unlock()
	return ok && c.breaker.Ready()
}

// Fetch runs one quote request for pair through the pipeline. Every outcome
// that reached the network is recorded exactly once on the breaker.
func (c *Connector) Fetch(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	if err := c.gate(); err != nil {
		return provider.Quote{}, err
	}
	if err := c.breaker.Allow(); err != nil {
		return provider.Quote{}, provider.NewError(provider.ErrCircuitOpen, c.Name(), err)
	}

	q, res, err := c.call(ctx, pair)
	switch res {
	case succeeded:
		c.breaker.Success()
	case failed:
		c.breaker.Failure()
	case released:
		c.breaker.Release()
	}
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
	}
	return q, err
}

func (c *Connector) gate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		if !c.warned {
			c.warned = true
			c.logger.Warn().Msg("credentials missing, connector disabled")
		}
		return provider.NewError(provider.ErrCredentialsMissing, c.Name(), nil)
	}
	if c.geoBlocked {
		return provider.NewError(provider.ErrGeoBlocked, c.Name(), errGeoDisabled)
	}
	return nil
}

func (c *Connector) call(ctx context.Context, pair provider.Pair) (provider.Quote, outcome, error) {
	name := c.Name()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := c.breaker.Check(); err != nil {
				return provider.Quote{}, released, provider.NewError(provider.ErrCircuitOpen, name, err)
			}
		}

		if err := c.bucket.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = provider.NewError(provider.ErrRateLimited, name, fmt.Errorf("waiting for token: %w", err))
			}
			return provider.Quote{}, released, lastErr
		}

		q, err := c.attempt(ctx, pair)
		if err == nil {
			return q, succeeded, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			if errors.Is(cerr, context.Canceled) {
				// The caller gave up; the source is not to blame.
				return provider.Quote{}, released, err
			}
			// The source did not answer before the deadline.
			c.logger.Debug().Err(err).Str("symbol", pair.String()).Msg("no answer before deadline")
			return provider.Quote{}, failed, err
		}
		lastErr = err

		kind := provider.KindOf(err)
		log := c.logger.Debug().Err(err).Str("symbol", pair.String()).Int("attempt", attempt+1)
		switch kind {
		case provider.ErrAuth:
			c.mu.Lock()
			c.credReview = true
			c.mu.Unlock()
			c.logger.Error().Err(err).Msg("authentication rejected, credentials need review")
			return provider.Quote{}, failed, err
		case provider.ErrGeoBlocked:
			c.mu.Lock()
			c.geoBlocked = true
			c.mu.Unlock()
			c.logger.Error().Err(err).Msg("geo blocked, connector disabled until reset")
			return provider.Quote{}, failed, err
		case provider.ErrUnknownSymbol:
			log.Msg("symbol not recognized")
			return provider.Quote{}, failed, err
		}

		rateLimited := kind == provider.ErrRateLimited
		giveUp := func() (provider.Quote, outcome, error) {
			if rateLimited && !c.policy.CountRateLimitAsFailure {
				return provider.Quote{}, released, err
			}
			return provider.Quote{}, failed, err
		}
		if attempt >= c.policy.MaxRetries {
			log.Msg("retries exhausted")
			return giveUp()
		}

		if rateLimited {
			c.bucket.Drain()
		}
		delay := c.policy.Backoff(attempt, rateLimited)
		delay += c.jitter(delay)
		if dl, ok := ctx.Deadline(); ok && c.now().Add(delay).After(dl) {
			log.Dur("wait", delay).Msg("retry would pass the deadline, abandoning")
			return giveUp()
		}
		log.Dur("wait", delay).Msg("retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return provider.Quote{}, released, lastErr
		}
	}
}

// attempt performs one bounded request and validates what came back.
func (c *Connector) attempt(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	name := c.Name()
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	q, err := c.src.FetchQuote(actx, pair)
	elapsed := c.now().Sub(start)
	if err != nil {
		if provider.KindOf(err) == nil {
			err = provider.NewError(provider.ErrNetwork, name, err)
		}
		return provider.Quote{}, err
	}
	if !q.Price.IsPositive() {
		return provider.Quote{}, provider.NewError(provider.ErrInvalidResponse, name,
			fmt.Errorf("non-positive price %s", q.Price))
	}

	q.Symbol = pair.String()
	q.Source = name
	q.LatencyMS = elapsed.Milliseconds()
	if q.ObservedAt.IsZero() {
		q.ObservedAt = c.now()
	}
	c.recordLatency(q.LatencyMS)
	return q, nil
}

func (c *Connector) recordLatency(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies[c.latencyNext] = ms
	c.latencyNext = (c.latencyNext + 1) % latencyWindow
	if c.latencyN < latencyWindow {
		c.latencyN++
	}
}

// Reset closes the breaker and lifts a geo-block or credential-review flag.
func (c *Connector) Reset() {
	c.mu.Lock()
	c.geoBlocked = false
	c.credReview = false
	c.lastError = ""
	c.mu.Unlock()
	c.breaker.Reset()
	c.logger.Info().Msg("connector reset")
}
