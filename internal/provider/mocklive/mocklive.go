// Package mocklive serves fixed reference prices so the pipeline can run
// without network access. It is only registered in test mode.
package mocklive

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/provider"
)

const Name = "mock_live"

// DefaultPrices are the reference prices keyed by pair ("BTC/USD").
var DefaultPrices = map[string]decimal.Decimal{
	"BTC/USD": decimal.NewFromInt(65000),
	"ETH/USD": decimal.NewFromInt(3500),
	"BNB/USD": decimal.NewFromInt(600),
	"SOL/USD": decimal.NewFromInt(150),
	"XAU/USD": decimal.NewFromInt(2300),
	"XAG/USD": decimal.RequireFromString("27.5"),
	"EUR/USD": decimal.RequireFromString("1.0850"),
	"GBP/USD": decimal.RequireFromString("1.2650"),
	"USD/JPY": decimal.RequireFromString("151.20"),
}

type Provider struct {
	prices map[string]decimal.Decimal
	now    func() time.Time
}

// New returns a provider over prices, or DefaultPrices when prices is nil.
func New(prices map[string]decimal.Decimal) *Provider {
	if prices == nil {
		prices = DefaultPrices
	}
	return &Provider{prices: prices, now: time.Now}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Supports(pair provider.Pair) bool {
	_, ok := p.prices[pair.String()]
	return ok
}

func (p *Provider) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quote{}, provider.NewError(provider.ErrNetwork, Name, err)
	}
	price, ok := p.prices[pair.String()]
	if !ok {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}
	return provider.Quote{Price: price, ObservedAt: p.now().UTC()}, nil
}
