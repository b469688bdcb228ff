package coincap

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pricequorum/internal/httpx"
	"pricequorum/internal/provider"
)

const (
	Name           = "coincap"
	defaultBaseURL = "https://api.coincap.io/v2"
)

var assetIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binance-coin",
	"SOL":  "solana",
	"XRP":  "xrp",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"LTC":  "litecoin",
}

type Client struct {
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
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

// New creates a CoinCap client. A key, when given, is sent as a bearer token.
func New(key string, options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	if key != "" {
		c.header.Set("Authorization", "Bearer "+key)
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(pair provider.Pair) bool {
	_, ok := assetIDs[pair.Base]
	return ok && pair.Quote == "USD"
}

type assetResponse struct {
	Data struct {
		ID       string          `json:"id"`
		PriceUSD decimal.Decimal `json:"priceUsd"`
	} `json:"data"`
	Timestamp int64 `json:"timestamp"` // unix ms
}

func (c *Client) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	id, ok := assetIDs[pair.Base]
	if !ok || pair.Quote != "USD" {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	var res assetResponse
	if err := provider.GetJSON(ctx, c.httpClient, Name, c.baseURL+"/assets/"+id, c.header, &res); err != nil {
		return provider.Quote{}, err
	}
	if res.Data.ID == "" {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	q := provider.Quote{Price: res.Data.PriceUSD}
	if res.Timestamp > 0 {
		q.ObservedAt = time.UnixMilli(res.Timestamp).UTC()
	}
	return q, nil
}
