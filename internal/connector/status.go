package connector

import (
	"time"

	"pricequorum/internal/provider/breaker"
)

// Status is a read-only view of a connector for health reporting.
type Status struct {
	Name                  string        `json:"name"`
	Enabled               bool          `json:"enabled"`
	GeoBlocked            bool          `json:"geo_blocked,omitempty"`
	NeedsCredentialReview bool          `json:"needs_credential_review,omitempty"`
	CircuitState          breaker.State `json:"circuit_state"`
	ConsecutiveFailures   int           `json:"consecutive_failures"`
	OpenedAt              time.Time     `json:"opened_at,omitzero"`
	BucketTokens          float64       `json:"bucket_tokens"`
	RemainingTokens       int           `json:"remaining_tokens"`
	BucketLastRefill      time.Time     `json:"bucket_last_refill"`
	AvgLatencyMS          int64         `json:"avg_latency_ms"`
	LastError             string        `json:"last_error,omitempty"`
	Breaker               breaker.Stats `json:"breaker"`
}

func (c *Connector) Status() Status {
	bs := c.breaker.Stats()
	tokens, last := c.bucket.Snapshot()
	remaining := int(tokens)
	if c.limiter != nil {
		remaining = c.limiter.Remaining(c.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Name:                  c.Name(),
		Enabled:               c.enabled,
		GeoBlocked:            c.geoBlocked,
		NeedsCredentialReview: c.credReview,
		CircuitState:          bs.State,
		ConsecutiveFailures:   bs.ConsecutiveFailures,
		OpenedAt:              bs.OpenedAt,
		BucketTokens:          tokens,
		RemainingTokens:       remaining,
		BucketLastRefill:      last,
		AvgLatencyMS:          c.avgLatency(),
		LastError:             c.lastError,
		Breaker:               bs,
	}
}

// avgLatency must be called with c.mu held.
func (c *Connector) avgLatency() int64 {
	if c.latencyN == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < c.latencyN; i++ {
		sum += c.latencies[i]
	}
	return sum / int64(c.latencyN)
}
