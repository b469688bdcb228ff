package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChecksum_Deterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)
	a := Checksum("BTC/USD", d("50000"), []string{"coingecko", "coincap"}, at)
	b := Checksum("BTC/USD", d("50000"), []string{"coincap", "coingecko"}, at.In(time.FixedZone("x", 3600)))

	// Source order and time zone do not matter.
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	require.NotEqual(t, a, Checksum("BTC/USD", d("50000.01"), []string{"coingecko", "coincap"}, at))
	require.NotEqual(t, a, Checksum("BTC/USD", d("50000"), []string{"coingecko"}, at))
	require.NotEqual(t, a, Checksum("BTC/USD", d("50000"), []string{"coingecko", "coincap"}, at.Add(time.Nanosecond)))
}

func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	cp := CanonicalPrice{
		Symbol:      "XAU/USD",
		Price:       d("2300.5"),
		SourcesUsed: []string{"metals_live", "yahoo"},
		ComputedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cp.Checksum = Checksum(cp.Symbol, cp.Price, cp.SourcesUsed, cp.ComputedAt)
	require.True(t, VerifyChecksum(cp))

	cp.Price = d("2300.6")
	require.False(t, VerifyChecksum(cp))
}
