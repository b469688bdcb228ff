package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"pricequorum/internal/provider"
)

// ErrBadSymbol is returned when a raw symbol cannot be reduced to a pair.
var ErrBadSymbol = errors.New("unrecognized symbol")

// baseAliases normalizes spellings of the base asset.
var baseAliases = map[string]string{
	"GOLD":      "XAU",
	"SILVER":    "XAG",
	"PLATINUM":  "XPT",
	"PALLADIUM": "XPD",
	"XBT":       "BTC",
}

// quoteAliases collapses stablecoin quotes onto USD.
var quoteAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
}

// quoteSuffixes are tried in order on unseparated symbols like BTCUSDT.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD"}

var productSuffixes = []string{".P", "-PERP", "_PERP", "PERP", "=X", "-SPOT"}

var metals = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}

var fiat = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CHF": true, "AUD": true, "CAD": true, "NZD": true,
}

// Normalize reduces a raw symbol to a canonical pair and its asset class.
// Rules:
//   - upper-case, trim, drop an exchange prefix ("BINANCE:", "X:", "C:")
//     and a settlement suffix (":USDT")
//   - drop product suffixes (".P", "-PERP", "=X")
//   - split on '/', '-' or '_', else peel a known quote currency off the end
//   - a bare base gets a USD quote
//   - aliases: GOLD->XAU, XBT->BTC, USDT/USDC->USD
//
// Metals are XAU/XAG/XPT/XPD, forex is fiat against fiat, anything else is crypto.
func Normalize(raw string) (provider.Pair, provider.AssetClass, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.Index(s, ":"); i >= 0 && !strings.Contains(s[:i], "/") {
		s = s[i+1:]
	}
	// A settlement currency ("BTC/USDT:USDT") follows the pair.
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	for _, suf := range productSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}

	var base, quote string
	if i := strings.IndexAny(s, "/-_"); i >= 0 {
		base, quote = s[:i], s[i+1:]
	} else {
		base = s
		for _, q := range quoteSuffixes {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				base, quote = s[:len(s)-len(q)], q
				break
			}
		}
		if quote == "" {
			quote = "USD"
		}
	}

	if v, ok := baseAliases[base]; ok {
		base = v
	}
	if v, ok := quoteAliases[quote]; ok {
		quote = v
	}
	if !validCode(base) || !validCode(quote) || base == quote {
		return provider.Pair{}, "", fmt.Errorf("%w: %q", ErrBadSymbol, raw)
	}

	pair := provider.Pair{Base: base, Quote: quote}
	switch {
	case metals[base]:
		return pair, provider.Metals, nil
	case fiat[base] && fiat[quote]:
		return pair, provider.Forex, nil
	}
	return pair, provider.Crypto, nil
}

func validCode(s string) bool {
	if len(s) < 2 || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
