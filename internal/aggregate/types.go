package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/provider"
)

// AuditStatus says what happened to one connector during an aggregation.
type AuditStatus string

const (
	StatusIncluded     AuditStatus = "included"
	StatusExcluded     AuditStatus = "excluded_high_deviation"
	StatusFailed       AuditStatus = "failed"
	StatusSkipped      AuditStatus = "skipped"
	StatusDeadline     AuditStatus = "deadline"
	StatusFallbackUsed AuditStatus = "fallback_median"
)

// AuditEntry records one connector's part in an aggregation.
type AuditEntry struct {
	Source       string           `json:"source"`
	Status       AuditStatus      `json:"status"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	ObservedAt   time.Time        `json:"observed_at,omitzero"`
	LatencyMS    int64            `json:"latency_ms,omitempty"`
	DeviationPct *decimal.Decimal `json:"deviation_pct,omitempty"`
	// Reason is the error category or skip reason.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CanonicalPrice is the single trusted price for a symbol. It is never
// modified after the aggregator returns it.
type CanonicalPrice struct {
	Symbol      string              `json:"symbol"`
	AssetClass  provider.AssetClass `json:"asset_class"`
	Price       decimal.Decimal     `json:"price"`
	SourcesUsed []string            `json:"sources_used"`
	// DeviationPct is the largest deviation from the median among SourcesUsed, in percent.
	DeviationPct decimal.Decimal `json:"deviation_pct"`
	Median       decimal.Decimal `json:"median"`
	// Fallback is set when outliers left too few sources and the median was used.
	Fallback   bool         `json:"fallback"`
	Checksum   string       `json:"checksum"`
	ComputedAt time.Time    `json:"computed_at"`
	CycleID    string       `json:"cycle_id"`
	Audit      []AuditEntry `json:"audit"`
}

// ErrInsufficientSources matches *InsufficientSourcesError with errors.Is.
var ErrInsufficientSources = errors.New("insufficient sources")

// InsufficientSourcesError means no verified price is available this cycle.
// Callers must not act on any price for Symbol.
type InsufficientSourcesError struct {
	Symbol   string
	Required int
	Got      int
	Audit    []AuditEntry
	// Cause is set when the caller stopped waiting before a result arrived.
	Cause error
}

func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("%s: no verified price available (%d of %d required sources)", e.Symbol, e.Got, e.Required)
}

func (e *InsufficientSourcesError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInsufficientSources}
	}
	return []error{ErrInsufficientSources, e.Cause}
}
