package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pricequorum/internal/provider"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quotesOf(pairs ...string) []provider.Quote {
	var out []provider.Quote
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, provider.Quote{Source: pairs[i], Price: d(pairs[i+1])})
	}
	return out
}

func TestMedian(t *testing.T) {
	t.Parallel()

	require.True(t, Median([]decimal.Decimal{d("3"), d("1"), d("2")}).Equal(d("2")))
	require.True(t, Median([]decimal.Decimal{d("4"), d("1"), d("3"), d("2")}).Equal(d("2.5")))
	require.True(t, Median(nil).IsZero())

	in := []decimal.Decimal{d("9"), d("1")}
	Median(in)
	require.True(t, in[0].Equal(d("9")), "input must not be reordered")
}

func TestResolve_ExcludesOutlier(t *testing.T) {
	t.Parallel()

	// Arrange
	quotes := quotesOf("A", "50000", "B", "50010", "C", "58000")

	// Act
	c := resolve(quotes, d("1.5"), 2)

	// Assert: highest-priority surviving source wins
	require.False(t, c.Fallback)
	require.True(t, c.Price.Equal(d("50000")))
	require.True(t, c.Median.Equal(d("50010")))
	require.Equal(t, []string{"A", "B"}, c.Used)
	require.True(t, c.Excluded["C"])
	require.Equal(t, "0.019996", c.MaxDeviationPct.String())
}

func TestResolve_AllWithinThreshold(t *testing.T) {
	t.Parallel()

	c := resolve(quotesOf("A", "50000", "B", "50010", "C", "50050"), d("1.5"), 2)

	require.False(t, c.Fallback)
	require.True(t, c.Price.Equal(d("50000")))
	require.Equal(t, []string{"A", "B", "C"}, c.Used)
	require.Empty(t, c.Excluded)
	require.Equal(t, "0.079984", c.MaxDeviationPct.String())
}

func TestResolve_FallsBackToMedian(t *testing.T) {
	t.Parallel()

	// Arrange: both sources are 33% away from the median
	quotes := quotesOf("A", "100", "B", "200")

	// Act
	c := resolve(quotes, d("1.5"), 2)

	// Assert
	require.True(t, c.Fallback)
	require.True(t, c.Price.Equal(d("150")))
	require.Equal(t, []string{"A", "B"}, c.Used)
	require.True(t, c.Excluded["A"])
	require.True(t, c.Excluded["B"])
	require.Equal(t, "33.333333", c.MaxDeviationPct.String())
}

func TestResolve_SingleSource(t *testing.T) {
	t.Parallel()

	c := resolve(quotesOf("A", "2300.5"), d("1.0"), 1)

	require.False(t, c.Fallback)
	require.True(t, c.Price.Equal(d("2300.5")))
	require.Equal(t, []string{"A"}, c.Used)
	require.True(t, c.MaxDeviationPct.IsZero())
}

func TestResolve_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	// Median 100; B sits exactly 1% away.
	c := resolve(quotesOf("A", "100", "B", "101", "C", "99"), d("1"), 2)

	require.False(t, c.Fallback)
	require.Empty(t, c.Excluded)
	require.Equal(t, []string{"A", "B", "C"}, c.Used)
}
