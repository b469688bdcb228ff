package alpaca

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
	Name           = "alpaca"
	defaultBaseURL = "https://data.alpaca.markets"
)

var cryptoBases = map[string]bool{"BTC": true, "ETH": true, "SOL": true, "LTC": true, "DOGE": true, "XRP": true}

// Client reads the latest crypto trades from the Alpaca market data API.
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

// New creates an Alpaca client authenticated with a key id and secret.
func New(key, secret string, options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	c.header.Set("APCA-API-KEY-ID", key)
	c.header.Set("APCA-API-SECRET-KEY", secret)
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(pair provider.Pair) bool {
	return cryptoBases[pair.Base] && pair.Quote == "USD"
}

type latestTradesResponse struct {
	Trades map[string]struct {
		Price     decimal.Decimal `json:"p"`
		Timestamp time.Time       `json:"t"`
	} `json:"trades"`
}

func (c *Client) FetchQuote(ctx context.Context, pair provider.Pair) (provider.Quote, error) {
	if !c.Supports(pair) {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}
	sym := pair.String()

	var res latestTradesResponse
	u := c.baseURL + "/v1beta3/crypto/us/latest/trades?" + url.Values{"symbols": {sym}}.Encode()
	if err := provider.GetJSON(ctx, c.httpClient, Name, u, c.header, &res); err != nil {
		return provider.Quote{}, err
	}
	trade, ok := res.Trades[sym]
	if !ok {
		return provider.Quote{}, provider.NewError(provider.ErrUnknownSymbol, Name, nil)
	}
	return provider.Quote{Price: trade.Price, ObservedAt: trade.Timestamp.UTC()}, nil
}
