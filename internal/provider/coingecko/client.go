package coingecko

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

const (
	Name           = "coingecko"
	defaultBaseURL = "https://api.coingecko.com/api/v3"
)

// coinIDs maps base assets to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"LTC":  "litecoin",
}

// Client is a client for the CoinGecko simple price API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient httpx.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the CoinGecko client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// New creates a CoinGecko client. The key is optional; without it the
// public rate tier applies.
func New(key string, options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	if key != "" {
		c.header.Set("x-cg-demo-api-key", key)
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(pair provider.Pair) bool {
	_, ok := coinIDs[pair.Base]
	return ok && pair.Quote == "USD"
}

// FetchQuote returns the latest USD price for pair.
func (c *Client) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	id, ok := coinIDs[pair.Base]
	if !ok || pair.Quote != "USD" {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	q.Set("include_last_updated_at", "true")

	// {"bitcoin":{"usd":67000.12,"last_updated_at":1700000000}}
	var body map[string]struct {
		USD           decimal.Decimal `json:"usd"`
		LastUpdatedAt int64           `json:"last_updated_at"`
	}
	if err := provider.GetJSON(ctx, c.httpClient, Name, c.baseURL+"/simple/price?"+q.Encode(), c.header, &body); err != nil {
		return provider.Quote{}, err
	}

	entry, ok := body[id]
	if !ok {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}
	quote := provider.Quote{Price: entry.USD}
	if entry.LastUpdatedAt > 0 {
		quote.ObservedAt = time.Unix(entry.LastUpdatedAt, 0).UTC()
	}
	return quote, nil
}
