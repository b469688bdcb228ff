package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/httpx"
	"pricequorum/internal/provider"
)

const (
	Name           = "polygon"
	defaultBaseURL = "https://api.polygon.io"
)

var (
	cryptoBases = map[string]bool{"BTC": true, "ETH": true, "SOL": true, "XRP": true, "ADA": true, "DOGE": true, "LTC": true}
	// currencies covers fiat and the spot metals, which Polygon lists as C: pairs.
	currencies = map[string]bool{
		"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true, "AUD": true, "CAD": true, "NZD": true,
		"XAU": true, "XAG": true, "XPT": true, "XPD": true,
	}
)

// Client is a client for the Polygon.io REST API. It always needs a key.
type Client struct {
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
	query      url.Values
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

func New(key string, options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	c.query.Set("apiKey", key)
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(pair provider.Pair) bool {
	_, ok := ticker(pair)
	return ok
}

// ticker maps a pair to a Polygon ticker: X:BTCUSD for crypto, C:EURUSD
// for currencies and metals.
func ticker(pair provider.Pair) (string, bool) {
	switch {
	case cryptoBases[pair.Base] && pair.Quote == "USD":
		return "X:" + pair.Base + pair.Quote, true
	case currencies[pair.Base] && currencies[pair.Quote] && pair.Base != pair.Quote:
		return "C:" + pair.Base + pair.Quote, true
	}
	return "", false
}

type lastTradeResponse struct {
	Status  string `json:"status"`
	Results struct {
		Price     decimal.Decimal `json:"p"`
		Timestamp int64           `json:"t"` // unix ns
	} `json:"results"`
}

type prevCloseResponse struct {
	Results []struct {
		Close     decimal.Decimal `json:"c"`
		Timestamp int64           `json:"t"` // unix ms
	} `json:"results"`
}

// FetchQuote reads the last trade and falls back to the previous close
// when the plan or the market has no last trade for the ticker.
func (c *Client) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	t, ok := ticker(pair)
	if !ok {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	var last lastTradeResponse
	err := provider.GetJSON(ctx, c.httpClient, Name, c.url("/v2/last/trade/"+t), c.header, &last)
	switch {
	case err == nil && last.Results.Price.IsPositive():
		q := provider.Quote{Price: last.Results.Price}
		if last.Results.Timestamp > 0 {
			q.ObservedAt = time.Unix(0, last.Results.Timestamp).UTC()
		}
		return q, nil
	case err != nil && !errors.Is(err, provider.ErrUnknownSymbol):
		return provider.Quote{}, err
	}

	var prev prevCloseResponse
	if err := provider.GetJSON(ctx, c.httpClient, Name, c.url("/v2/aggs/ticker/"+t+"/prev"), c.header, &prev); err != nil {
		return provider.Quote{}, err
	}
	if len(prev.Results) == 0 {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, fmt.Errorf("no results for %s", t))
	}
	r := prev.Results[0]
	q := provider.Quote{Price: r.Close}
	if r.Timestamp > 0 {
		q.ObservedAt = time.UnixMilli(r.Timestamp).UTC()
	}
	return q, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + path + "?" + c.query.Encode()
}
