package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass selects the deviation threshold and the connector route for a pair.
type AssetClass string

const (
	Crypto AssetClass = "crypto"
	Metals AssetClass = "metals"
	Forex  AssetClass = "forex"
)

// Pair is a normalized base/quote instrument, e.g. BTC/USD.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// Quote is one source's reported price for a pair at a point in time.
// Values are never modified after the connector pipeline hands them out.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Source     string          `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
	LatencyMS  int64           `json:"latency_ms"`
}

// Source is one external price API. Request and response shapes stay inside
// the implementation; callers only see a Quote or a typed *Error.
//
//go:generate mockgen -destination=mock_provider/mock_provider.go -package=mock_provider -source=provider.go Source
type Source interface {
	Name() string
	// Supports reports whether the source can quote the pair at all.
	// It must not touch the network.
	Supports(pair Pair) bool
	FetchQuote(ctx context.Context, pair Pair) (Quote, error)
}
