package aggregate

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"pricequorum/internal/connector"
	"pricequorum/internal/provider"
	"pricequorum/internal/provider/breaker"
	"pricequorum/internal/provider/cache"
	"pricequorum/internal/provider/ratelimit"
)

// Connector is what the aggregator needs from one source pipeline.
// *connector.Connector implements it.
type Connector interface {
	Name() string
	Supports(pair provider.Pair) bool
	// Available reports whether a call could currently reach the network.
	Available() bool
	Fetch(ctx context.Context, pair provider.Pair) (provider.Quote, error)
	Status() connector.Status
}

// DefaultThresholds are deviation limits in percent.
var DefaultThresholds = map[provider.AssetClass]decimal.Decimal{
	provider.Crypto: decimal.RequireFromString("1.5"),
	provider.Metals: decimal.RequireFromString("1.0"),
	provider.Forex:  decimal.RequireFromString("0.5"),
}

type Config struct {
	MinSources    int
	CacheTTL      time.Duration
	CacheMaxItems int
	// Deadline bounds an aggregation when the caller's context has none sooner.
	Deadline    time.Duration
	MaxParallel int
	// Thresholds in percent per asset class; missing classes use DefaultThresholds.
	Thresholds map[provider.AssetClass]decimal.Decimal
	// Routes lists connector names per asset class, highest priority first.
	// A class without a route uses every connector in registration order.
	Routes map[provider.AssetClass][]string
}

func DefaultConfig() Config {
	return Config{
		MinSources:    2,
		CacheTTL:      10 * time.Second,
		CacheMaxItems: cache.DefaultMaxItems,
		Deadline:      8 * time.Second,
		MaxParallel:   4,
	}
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	cache.Stats
	// Aggregations counts fan-outs to the connectors.
	Aggregations int64 `json:"aggregations"`
}

// Aggregator produces canonical prices. It owns the price cache; the
// connectors own their breaker and limiter state.
type Aggregator struct {
	cfg        Config
	connectors []Connector
	byName     map[string]Connector
	now        func() time.Time
	logger     zerolog.Logger

	cache        *cache.Cache[CanonicalPrice]
	group        singleflight.Group
	aggregations atomic.Int64
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New builds an aggregator over connectors given in priority order.
func New(connectors []Connector, cfg Config, opts ...Option) *Aggregator {
	if cfg.MinSources <= 0 {
		cfg.MinSources = 1
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = len(connectors)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	a := &Aggregator{
		cfg:        cfg,
		connectors: connectors,
		byName:     make(map[string]Connector, len(connectors)),
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, c := range connectors {
		a.byName[c.Name()] = c
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cache = cache.New[CanonicalPrice](cache.WithClock(a.now), cache.WithMaxItems(cfg.CacheMaxItems))
	return a
}

// CanonicalPrice returns the trusted price for raw, serving from cache while
// the entry is fresh. It fails with ErrBadSymbol or an
// *InsufficientSourcesError; nothing is cached on failure. Concurrent misses
// for the same symbol share one aggregation.
func (a *Aggregator) CanonicalPrice(ctx context.Context, raw string) (CanonicalPrice, error) {
	pair, class, err := Normalize(raw)
	if err != nil {
		return CanonicalPrice{}, err
	}
	key := pair.String()
	if cp, ok := a.cache.Get(key); ok {
		return cp, nil
	}

	// The shared run is bounded by cfg.Deadline only; each caller stops
	// waiting on its own context.
	shared := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		cp, err := a.aggregate(shared, pair, class)
		if err != nil {
			return nil, err
		}
		a.cache.Put(key, cp, a.cfg.CacheTTL)
		return cp, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return CanonicalPrice{}, r.Err
		}
		return r.Val.(CanonicalPrice), nil
	case <-ctx.Done():
		return CanonicalPrice{}, &InsufficientSourcesError{Symbol: key, Required: a.cfg.MinSources, Cause: ctx.Err()}
	}
}

type result struct {
	idx   int
	quote provider.Quote
	err   error
}

func (a *Aggregator) aggregate(ctx context.Context, pair provider.Pair, class provider.AssetClass) (CanonicalPrice, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Deadline)
	defer cancel()

	a.aggregations.Add(1)
	symbol := pair.String()
	cycle := uuid.NewString()
	log := a.logger.With().Str("symbol", symbol).Str("cycle", cycle).Logger()

	route := a.route(class)
	entries := make([]AuditEntry, len(route))
	var candidates []int
	for i, c := range route {
		entries[i] = AuditEntry{Source: c.Name()}
		switch {
		case !c.Supports(pair):
			entries[i].Status, entries[i].Reason = StatusSkipped, "unsupported_symbol"
		case !c.Available():
			entries[i].Status, entries[i].Reason = StatusSkipped, skipReason(c.Status())
		default:
			candidates = append(candidates, i)
		}
	}
	if len(candidates) < a.cfg.MinSources {
		log.Warn().Int("healthy", len(candidates)).Int("required", a.cfg.MinSources).Msg("not enough healthy connectors")
		return CanonicalPrice{}, &InsufficientSourcesError{Symbol: symbol, Required: a.cfg.MinSources, Got: 0, Audit: entries}
	}

	// Buffered so late senders never block after the deadline.
	results := make(chan result, len(candidates))
	sem := semaphore.NewWeighted(int64(a.cfg.MaxParallel))
	for _, idx := range candidates {
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- result{idx: idx, err: err}
				return
			}
			defer sem.Release(1)
			q, err := route[idx].Fetch(ctx, pair)
			results <- result{idx: idx, quote: q, err: err}
		}()
	}

	done := make(map[int]result, len(candidates))
collect:
	for len(done) < len(candidates) {
		select {
		case r := <-results:
			done[r.idx] = r
		case <-ctx.Done():
			break collect
		}
	}

	var quotes []provider.Quote
	for _, idx := range candidates {
		r, ok := done[idx]
		switch {
		case !ok || pastDeadline(ctx, r.err):
			entries[idx].Status, entries[idx].Reason = StatusDeadline, "deadline_exceeded"
		case r.err != nil:
			entries[idx].Status, entries[idx].Reason = StatusFailed, errorReason(r.err)
			entries[idx].Error = r.err.Error()
		default:
			quotes = append(quotes, r.quote)
			price := r.quote.Price
			entries[idx].Status = StatusIncluded
			entries[idx].Price = &price
			entries[idx].ObservedAt = r.quote.ObservedAt
			entries[idx].LatencyMS = r.quote.LatencyMS
		}
	}

	if len(quotes) < a.cfg.MinSources {
		log.Warn().Int("quotes", len(quotes)).Int("required", a.cfg.MinSources).Msg("no verified price available")
		return CanonicalPrice{}, &InsufficientSourcesError{Symbol: symbol, Required: a.cfg.MinSources, Got: len(quotes), Audit: entries}
	}

	res := resolve(quotes, a.threshold(class), a.cfg.MinSources)
	for i := range entries {
		dev, ok := res.Deviation[entries[i].Source]
		if !ok || entries[i].Price == nil {
			continue
		}
		pct := dev.Mul(hundred).Round(6)
		entries[i].DeviationPct = &pct
		switch {
		case res.Fallback:
			entries[i].Status = StatusFallbackUsed
			if res.Excluded[entries[i].Source] {
				entries[i].Reason = "high_deviation"
			}
		case res.Excluded[entries[i].Source]:
			entries[i].Status = StatusExcluded
		default:
			entries[i].Status = StatusIncluded
		}
	}

	computedAt := a.now().UTC()
	cp := CanonicalPrice{
		Symbol:       symbol,
		AssetClass:   class,
		Price:        res.Price,
		SourcesUsed:  res.Used,
		DeviationPct: res.MaxDeviationPct,
		Median:       res.Median,
		Fallback:     res.Fallback,
		Checksum:     Checksum(symbol, res.Price, res.Used, computedAt),
		ComputedAt:   computedAt,
		CycleID:      cycle,
		Audit:        entries,
	}

	ev := log.Info()
	if res.Fallback {
		ev = log.Warn().Int("excluded", len(res.Excluded))
	}
	ev.Stringer("price", res.Price).Strs("sources", res.Used).Bool("fallback", res.Fallback).Msg("canonical price computed")
	return cp, nil
}

// route returns the connectors for class in priority order.
func (a *Aggregator) route(class provider.AssetClass) []Connector {
	names, ok := a.cfg.Routes[class]
	if !ok {
		return a.connectors
	}
	out := make([]Connector, 0, len(names))
	for _, n := range names {
		if c, ok := a.byName[n]; ok && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (a *Aggregator) threshold(class provider.AssetClass) decimal.Decimal {
	if t, ok := a.cfg.Thresholds[class]; ok {
		return t
	}
	if t, ok := DefaultThresholds[class]; ok {
		return t
	}
	return DefaultThresholds[provider.Crypto]
}

// Status reports every connector in priority order.
func (a *Aggregator) Status() []connector.Status {
	out := make([]connector.Status, 0, len(a.connectors))
	for _, c := range a.connectors {
		out = append(out, c.Status())
	}
	return out
}

// Invalidate drops the cached price for raw, or every cached price when raw
// is empty. It fails only with ErrBadSymbol.
func (a *Aggregator) Invalidate(raw string) error {
	if raw == "" {
		a.cache.Clear()
		a.logger.Info().Msg("price cache cleared")
		return nil
	}
	pair, _, err := Normalize(raw)
	if err != nil {
		return err
	}
	if a.cache.Delete(pair.String()) {
		a.logger.Info().Str("symbol", pair.String()).Msg("cached price invalidated")
	}
	return nil
}

func (a *Aggregator) CacheStats() CacheStats {
	return CacheStats{Stats: a.cache.Stats(), Aggregations: a.aggregations.Load()}
}

// pastDeadline reports whether err came from running out of aggregation time
// rather than from the source.
func pastDeadline(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ratelimit.ErrDeadline) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded)
}

func skipReason(st connector.Status) string {
	switch {
	case !st.Enabled:
		return "credentials_missing"
	case st.GeoBlocked:
		return "geo_blocked"
	case st.CircuitState == breaker.Open:
		return "circuit_open"
	}
	return "unavailable"
}

var errorReasons = []struct {
	kind   error
	reason string
}{
	{provider.ErrCredentialsMissing, "credentials_missing"},
	{provider.ErrCircuitOpen, "circuit_open"},
	{provider.ErrAuth, "auth_error"},
	{provider.ErrGeoBlocked, "geo_blocked"},
	{provider.ErrUnknownSymbol, "unknown_symbol"},
	{provider.ErrRateLimited, "rate_limited"},
	{provider.ErrDNS, "dns_failure"},
	{provider.ErrNetwork, "network_error"},
	{provider.ErrInvalidResponse, "invalid_response"},
}

func errorReason(err error) string {
	for _, r := range errorReasons {
		if errors.Is(err, r.kind) {
			return r.reason
		}
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}
