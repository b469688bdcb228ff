package aggregate

import (
	"errors"
	"testing"

	"pricequorum/internal/provider"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw   string
		want  string
		class provider.AssetClass
	}{
		{"btc", "BTC/USD", provider.Crypto},
		{" BTCUSDT ", "BTC/USD", provider.Crypto},
		{"BINANCE:ETHUSDT.P", "ETH/USD", provider.Crypto},
		{"BTC/USDT:USDT", "BTC/USD", provider.Crypto},
		{"BYBIT:ETH/USDC:USDC", "ETH/USD", provider.Crypto},
		{"ETH/EUR:ETH", "ETH/EUR", provider.Crypto},
		{"eth-usd", "ETH/USD", provider.Crypto},
		{"sol_usdc", "SOL/USD", provider.Crypto},
		{"XBT/USD", "BTC/USD", provider.Crypto},
		{"BTC-PERP", "BTC/USD", provider.Crypto},
		{"XAU/USD", "XAU/USD", provider.Metals},
		{"gold", "XAU/USD", provider.Metals},
		{"XAGUSD", "XAG/USD", provider.Metals},
		{"EUR/USD", "EUR/USD", provider.Forex},
		{"C:EURUSD", "EUR/USD", provider.Forex},
		{"EURUSD=X", "EUR/USD", provider.Forex},
		{"USDJPY", "USD/JPY", provider.Forex},
		{"BTC/EUR", "BTC/EUR", provider.Crypto},
	}
	for _, tc := range cases {
		pair, class, err := Normalize(tc.raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.raw, err)
		}
		if pair.String() != tc.want || class != tc.class {
			t.Fatalf("%q: want %s (%s), got %s (%s)", tc.raw, tc.want, tc.class, pair, class)
		}
	}
}

func TestNormalize_Rejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "B", "BTC/BTC", "B$C", "BTC/", "THISISWAYTOOLONGFORACODE"} {
		if _, _, err := Normalize(raw); !errors.Is(err, ErrBadSymbol) {
			t.Fatalf("%q: want ErrBadSymbol, got %v", raw, err)
		}
	}
}
