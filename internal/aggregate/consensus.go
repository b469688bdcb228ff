package aggregate

import (
	"slices"

	"github.com/shopspring/decimal"
	"pricequorum/internal/provider"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// consensus is the pure outcome of deviation analysis over one quote set.
type consensus struct {
	Price  decimal.Decimal
	Median decimal.Decimal
	// Used lists sources behind Price, in priority order.
	Used []string
	// Deviation is each source's fractional distance from the median.
	Deviation map[string]decimal.Decimal
	Excluded  map[string]bool
	// MaxDeviationPct is the largest deviation among Used, in percent.
	MaxDeviationPct decimal.Decimal
	Fallback        bool
}

// Median returns the median of prices. For an even count it is the mean of
// the two middle values. prices is not modified.
func Median(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	sorted := slices.Clone(prices)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two)
}

// resolve runs deviation analysis. quotes must be in priority order and hold
// at least one quote with a positive median. thresholdPct is in percent.
//
// Quotes further than the threshold from the median are excluded. If at least
// minSources remain, the highest-priority remaining price wins; otherwise the
// median itself is used and every quote counts as used.
func resolve(quotes []provider.Quote, thresholdPct decimal.Decimal, minSources int) consensus {
	prices := make([]decimal.Decimal, len(quotes))
	for i, q := range quotes {
		prices[i] = q.Price
	}
	median := Median(prices)
	limit := thresholdPct.Div(hundred)

	c := consensus{
		Median:    median,
		Deviation: make(map[string]decimal.Decimal, len(quotes)),
		Excluded:  map[string]bool{},
	}
	var kept []provider.Quote
	for _, q := range quotes {
		dev := q.Price.Sub(median).Abs().Div(median)
		c.Deviation[q.Source] = dev
		if dev.GreaterThan(limit) {
			c.Excluded[q.Source] = true
			continue
		}
		kept = append(kept, q)
	}

	used := kept
	if len(kept) >= minSources && len(kept) > 0 {
		c.Price = kept[0].Price
	} else {
		c.Price = median
		c.Fallback = true
		used = quotes
	}

	maxDev := decimal.Zero
	for _, q := range used {
		c.Used = append(c.Used, q.Source)
		if d := c.Deviation[q.Source]; d.GreaterThan(maxDev) {
			maxDev = d
		}
	}
	c.MaxDeviationPct = maxDev.Mul(hundred).Round(6)
	return c
}
