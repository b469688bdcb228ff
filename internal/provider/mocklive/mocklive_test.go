package mocklive

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pricequorum/internal/provider"
)

func TestProvider_FetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange
	p := New(nil)
	btc := provider.Pair{Base: "BTC", Quote: "USD"}

	// Act
	q, err := p.FetchQuote(t.Context(), btc)

	// Assert
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.NewFromInt(65000)))
	require.False(t, q.ObservedAt.IsZero())
	require.True(t, p.Supports(btc))
}

func TestProvider_UnknownAndCancelled(t *testing.T) {
	t.Parallel()

	p := New(map[string]decimal.Decimal{"ETH/USD": decimal.NewFromInt(1)})
	doge := provider.Pair{Base: "DOGE", Quote: "USD"}
	require.False(t, p.Supports(doge))

	_, err := p.FetchQuote(t.Context(), doge)
	require.ErrorIs(t, err, provider.ErrUnknownSymbol)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = p.FetchQuote(ctx, provider.Pair{Base: "ETH", Quote: "USD"})
	require.ErrorIs(t, err, provider.ErrNetwork)
	require.ErrorIs(t, err, context.Canceled)
}
