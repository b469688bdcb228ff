package yahoo

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/httpx"
	"pricequorum/internal/provider"
)

const Name = "yahoo"

type Config struct {
	URL     string
	Headers map[string]string
	// SymbolMap overrides the derived Yahoo symbol for a pair ("BTC/USD" -> "BTC-USD").
	SymbolMap map[string]string
}

type Provider struct {
	cfg    Config
	client httpx.HTTPClient
}

var metals = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}

var fiat = map[string]bool{"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true, "AUD": true, "CAD": true, "NZD": true}

func New(cfg Config, hc httpx.HTTPClient) *Provider {
	if cfg.URL == "" {
		cfg.URL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Supports(pair provider.Pair) bool {
	_, ok := p.symbol(pair)
	return ok
}

// symbol maps a pair to a Yahoo chart symbol: BTC-USD, EURUSD=X, XAUUSD=X.
func (p *Provider) symbol(pair provider.Pair) (string, bool) {
	if s := p.cfg.SymbolMap[pair.String()]; s != "" {
		return s, true
	}
	switch {
	case pair.Base == pair.Quote:
		return "", false
	case (fiat[pair.Base] || metals[pair.Base]) && fiat[pair.Quote]:
		return pair.Base + pair.Quote + "=X", true
	case !fiat[pair.Base] && !metals[pair.Base] && pair.Quote == "USD":
		return pair.Base + "-USD", true
	}
	return "", false
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice decimal.NullDecimal `json:"regularMarketPrice"`
				PreviousClose      decimal.NullDecimal `json:"previousClose"`
				RegularMarketTime  int64               `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	sym, ok := p.symbol(pair)
	if !ok {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	header := http.Header{}
	for k, v := range p.cfg.Headers {
		header.Set(k, v)
	}
	q := url.Values{"interval": {"1d"}, "range": {"1d"}}

	var res chartResponse
	if err := provider.GetJSON(ctx, p.client, Name, p.cfg.URL+"/"+url.PathEscape(sym)+"?"+q.Encode(), header, &res); err != nil {
		return provider.Quote{}, err
	}
	if len(res.Chart.Result) == 0 {
		if res.Chart.Error != nil && res.Chart.Error.Code == "Not Found" {
			return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
		}
		return provider.Quote{}, provider.NewError(provider.ErrInvalidResponse, Name, nil)
	}

	meta := res.Chart.Result[0].Meta
	price := meta.RegularMarketPrice
	if !price.Valid {
		price = meta.PreviousClose
	}
	if !price.Valid {
		return provider.Quote{}, provider.NewError(provider.ErrInvalidResponse, Name, nil)
	}

	quote := provider.Quote{Price: price.Decimal}
	if meta.RegularMarketTime > 0 {
		quote.ObservedAt = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return quote, nil
}
