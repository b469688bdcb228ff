package yahoo_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"pricequorum/internal/httpx/mock_httpx"
	"pricequorum/internal/provider"
	"pricequorum/internal/provider/yahoo"
)

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		pair provider.Pair
		path string
		body string
		want string
	}{
		{
			name: "crypto regular market price",
			pair: provider.Pair{Base: "BTC", Quote: "USD"},
			path: "/v8/finance/chart/BTC-USD",
			body: `{"chart":{"result":[{"meta":{"regularMarketPrice":50050,"previousClose":49000,"regularMarketTime":1700000000}}],"error":null}}`,
			want: "50050",
		},
		{
			name: "forex falls back to previous close",
			pair: provider.Pair{Base: "EUR", Quote: "USD"},
			path: "/v8/finance/chart/EURUSD=X",
			body: `{"chart":{"result":[{"meta":{"previousClose":1.0842}}],"error":null}}`,
			want: "1.0842",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			httpClient := mock_httpx.NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) {
					require.Equal(t, tc.path, req.URL.Path)
					require.Equal(t, "pricequorum", req.Header.Get("User-Agent"))
					return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(tc.body))}, nil
				}).
				Times(1)
			p := yahoo.New(yahoo.Config{
				URL:     "http://localhost/v8/finance/chart/",
				Headers: map[string]string{"User-Agent": "pricequorum"},
			}, httpClient)

			// Act
			q, err := p.FetchQuote(t.Context(), tc.pair)

			// Assert
			require.NoError(t, err)
			require.Equal(t, tc.want, q.Price.String())
		})
	}
}

func TestFetchQuote_NoPrice(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"chart":{"result":[{"meta":{}}]}}`)),
	}, nil).Times(1)

	_, err := yahoo.New(yahoo.Config{}, httpClient).FetchQuote(t.Context(), provider.Pair{Base: "XAU", Quote: "USD"})
	require.ErrorIs(t, err, provider.ErrInvalidResponse)
}

func TestSupports(t *testing.T) {
	t.Parallel()

	p := yahoo.New(yahoo.Config{SymbolMap: map[string]string{"XAU/USD": "GC=F"}}, nil)
	require.True(t, p.Supports(provider.Pair{Base: "XAU", Quote: "USD"}))
	require.True(t, p.Supports(provider.Pair{Base: "USD", Quote: "JPY"}))
	require.False(t, p.Supports(provider.Pair{Base: "BTC", Quote: "EUR"}))
}
