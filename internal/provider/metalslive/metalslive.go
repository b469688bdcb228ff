// Package metalslive reads spot metal prices from metals.live.
package metalslive

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/httpx"
	"pricequorum/internal/provider"
)

const Name = "metals_live"

var metalNames = map[string]string{
	"XAU": "gold",
	"XAG": "silver",
	"XPT": "platinum",
	"XPD": "palladium",
}

type Config struct {
	URL     string
	Headers map[string]string
}

type Provider struct {
	cfg    Config
	client httpx.HTTPClient
}

func New(cfg Config, hc httpx.HTTPClient) *Provider {
	if cfg.URL == "" {
		cfg.URL = "https://api.metals.live"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Supports(pair provider.Pair) bool {
	_, ok := metalNames[pair.Base]
	return ok && pair.Quote == "USD"
}

// spot is one element of the /v1/spot/<metal> array.
type spot struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

func (p *Provider) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	metal, ok := metalNames[pair.Base]
	if !ok || pair.Quote != "USD" {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	header := http.Header{}
	for k, v := range p.cfg.Headers {
		header.Set(k, v)
	}
	var spots []spot
	if err := provider.GetJSON(ctx, p.client, Name, p.cfg.URL+"/v1/spot/"+metal, header, &spots); err != nil {
		return provider.Quote{}, err
	}
	if len(spots) == 0 {
		return provider.Quote{}, provider.NewError(provider.ErrInvalidResponse, Name, nil)
	}

	// newest last
	s := spots[len(spots)-1]
	q := provider.Quote{Price: s.Price}
	if s.Timestamp > 0 {
		q.ObservedAt = time.UnixMilli(s.Timestamp).UTC()
	}
	return q, nil
}
