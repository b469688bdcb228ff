package coingecko_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"pricequorum/internal/httpx/mock_httpx"
	"pricequorum/internal/provider"
	"pricequorum/internal/provider/coingecko"
)

var btc = provider.Pair{Base: "BTC", Quote: "USD"}

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockHTTPClient(ctrl)

	// Assert: stub the Do method and check the request
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "http://localhost:8080/simple/price", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
			require.Equal(t, "bitcoin", req.URL.Query().Get("ids"))
			require.Equal(t, "usd", req.URL.Query().Get("vs_currencies"))
			require.Equal(t, "secret", req.Header.Get("x-cg-demo-api-key"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"bitcoin":{"usd":67012.5,"last_updated_at":1700000000}}`)),
			}, nil
		}).
		Times(1)

	client := coingecko.New("secret",
		coingecko.WithBaseURL("http://localhost:8080/"),
		coingecko.WithHTTPClient(httpClient),
	)

	// Act
	q, err := client.FetchQuote(t.Context(), btc)

	// Assert
	require.NoError(t, err)
	require.Equal(t, "67012.5", q.Price.String())
	require.EqualValues(t, 1700000000, q.ObservedAt.Unix())
}

func TestFetchQuote_MissingCoin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil).Times(1)

	client := coingecko.New("", coingecko.WithHTTPClient(httpClient))
	_, err := client.FetchQuote(t.Context(), btc)

	require.ErrorIs(t, err, provider.ErrUnknownSymbol)
}

func TestSupports(t *testing.T) {
	t.Parallel()

	client := coingecko.New("")
	require.True(t, client.Supports(btc))
	require.False(t, client.Supports(provider.Pair{Base: "XAU", Quote: "USD"}))
	require.False(t, client.Supports(provider.Pair{Base: "BTC", Quote: "EUR"}))
}
