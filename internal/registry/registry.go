// Package registry assembles the connector set from a config snapshot using
// a static table of known sources.
package registry

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"pricequorum/internal/aggregate"
	"pricequorum/internal/config"
	"pricequorum/internal/connector"
	"pricequorum/internal/httpx"
	"pricequorum/internal/provider"
	"pricequorum/internal/provider/alpaca"
	"pricequorum/internal/provider/breaker"
	"pricequorum/internal/provider/coincap"
	"pricequorum/internal/provider/coingecko"
	"pricequorum/internal/provider/metalslive"
	"pricequorum/internal/provider/mocklive"
	"pricequorum/internal/provider/polygon"
	"pricequorum/internal/provider/ratelimit"
	"pricequorum/internal/provider/yahoo"
)

// Entry describes how to build one source.
type Entry struct {
	NeedsKey    bool
	NeedsSecret bool
	// TestOnly entries are skipped in live mode.
	TestOnly bool
	New      func(c config.Connector, hc httpx.HTTPClient) provider.Source
}

// Table is every source the service knows about.
var Table = map[string]Entry{
	coingecko.Name: {
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return coingecko.New(c.APIKey, coingecko.WithBaseURL(c.BaseURL), coingecko.WithHTTPClient(hc))
		},
	},
	coincap.Name: {
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return coincap.New(c.APIKey, coincap.WithBaseURL(c.BaseURL), coincap.WithHTTPClient(hc))
		},
	},
	polygon.Name: {
		NeedsKey: true,
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return polygon.New(c.APIKey, polygon.WithBaseURL(c.BaseURL), polygon.WithHTTPClient(hc))
		},
	},
	alpaca.Name: {
		NeedsKey:    true,
		NeedsSecret: true,
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return alpaca.New(c.APIKey, c.APISecret, alpaca.WithBaseURL(c.BaseURL), alpaca.WithHTTPClient(hc))
		},
	},
	yahoo.Name: {
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return yahoo.New(yahoo.Config{URL: c.BaseURL}, hc)
		},
	},
	metalslive.Name: {
		New: func(c config.Connector, hc httpx.HTTPClient) provider.Source {
			return metalslive.New(metalslive.Config{URL: c.BaseURL}, hc)
		},
	},
	mocklive.Name: {
		TestOnly: true,
		New: func(config.Connector, httpx.HTTPClient) provider.Source {
			return mocklive.New(nil)
		},
	},
}

// Set is the connector set owned by one aggregator.
type Set struct {
	// Connectors in priority order.
	Connectors []*connector.Connector
	// Routes holds connector names per asset class, highest priority first.
	Routes map[provider.AssetClass][]string
}

// Build creates one Connector per table entry listed in cfg.Aggregator.Priority.
// A connector missing required credentials is built disabled so it shows up
// in status reporting.
func Build(cfg config.Config, hc httpx.HTTPClient, logger zerolog.Logger) (*Set, error) {
	limiter := ratelimit.NewLimiter()
	policy := connector.RetryPolicy{
		MaxRetries:              cfg.Retry.MaxRetries,
		BaseDelay:               time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:                time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		RateLimitFactor:         cfg.Retry.RateLimitBackoffFactor,
		CountRateLimitAsFailure: cfg.Retry.CountRateLimitAsFailure,
	}

	set := &Set{Routes: map[provider.AssetClass][]string{}}
	seen := map[string]bool{}
	for _, name := range cfg.Aggregator.Priority {
		if seen[name] {
			continue
		}
		seen[name] = true

		entry, ok := Table[name]
		if !ok {
			return nil, fmt.Errorf("registry: unknown connector %q", name)
		}
		if entry.TestOnly && cfg.Mode != config.ModeTest {
			continue
		}
		cc := cfg.Connectors[name]

		enabled := cc.Enabled
		if (entry.NeedsKey && cc.APIKey == "") || (entry.NeedsSecret && cc.APISecret == "") {
			enabled = false
		}

		limit := ratelimit.Limit{Capacity: cc.Capacity, RefillPerSec: cc.RefillPerSec}
		if limit.Capacity <= 0 || limit.RefillPerSec <= 0 {
			limit = ratelimit.DefaultLimit
		}
		limiter.Configure(name, limit)

		br := breaker.New(name,
			breaker.WithMaxFailures(cfg.Breaker.MaxFailures),
			breaker.WithResetTimeout(cfg.ResetTimeout()),
			breaker.WithLogger(logger),
		)
		set.Connectors = append(set.Connectors, connector.New(entry.New(cc, hc),
			connector.WithEnabled(enabled),
			connector.WithBreaker(br),
			connector.WithLimiter(limiter),
			connector.WithRetryPolicy(policy),
			connector.WithTimeout(callTimeout(cc.Timeout(), cfg.Deadline())),
			connector.WithLogger(logger),
		))
		logger.Debug().Str("connector", name).Bool("enabled", enabled).Msg("connector registered")
	}

	for class, names := range cfg.Aggregator.Routes {
		ac := provider.AssetClass(class)
		for _, n := range names {
			if _, ok := Table[n]; !ok {
				return nil, fmt.Errorf("registry: route %s names unknown connector %q", class, n)
			}
		}
		set.Routes[ac] = slices.Clone(names)
	}
	return set, nil
}

// callTimeout keeps a single request shorter than the aggregation deadline,
// so a source that never answers times out inside the pipeline.
func callTimeout(timeout, deadline time.Duration) time.Duration {
	if deadline > 0 && timeout >= deadline {
		return deadline * 3 / 4
	}
	return timeout
}

// NewAggregator builds the connector set for cfg and an aggregator owning it.
func NewAggregator(cfg config.Config, hc httpx.HTTPClient, logger zerolog.Logger) (*aggregate.Aggregator, *Set, error) {
	set, err := Build(cfg, hc, logger)
	if err != nil {
		return nil, nil, err
	}

	conns := make([]aggregate.Connector, len(set.Connectors))
	for i, c := range set.Connectors {
		conns[i] = c
	}
	thresholds := make(map[provider.AssetClass]decimal.Decimal, len(cfg.Aggregator.Thresholds))
	for class, pct := range cfg.Aggregator.Thresholds {
		thresholds[provider.AssetClass(class)] = decimal.NewFromFloat(pct)
	}

	agg := aggregate.New(conns, aggregate.Config{
		MinSources:    cfg.Aggregator.MinSources,
		CacheTTL:      cfg.CacheTTL(),
		CacheMaxItems: cfg.Aggregator.CacheMaxItems,
		Deadline:      cfg.Deadline(),
		MaxParallel:   cfg.Aggregator.MaxParallel,
		Thresholds:    thresholds,
		Routes:        set.Routes,
	}, aggregate.WithLogger(logger))
	return agg, set, nil
}

// Lookup returns the connector called name.
func (s *Set) Lookup(name string) (*connector.Connector, bool) {
	for _, c := range s.Connectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}
