package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCache_ServesUntilExpiry(t *testing.T) {
	t.Parallel()

	// Arrange
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cc := New[string](WithClock(c.Now))
	cc.Put("BTC/USD", "67000", 10*time.Second)

	// Act + Assert: fresh
	v, ok := cc.Get("BTC/USD")
	require.True(t, ok)
	require.Equal(t, "67000", v)

	// Act + Assert: one tick before expiry still served
	c.Advance(10*time.Second - time.Nanosecond)
	_, ok = cc.Get("BTC/USD")
	require.True(t, ok)

	// Act + Assert: at expiresAt the entry is gone
	c.Advance(time.Nanosecond)
	_, ok = cc.Get("BTC/USD")
	require.False(t, ok)

	st := cc.Stats()
	require.EqualValues(t, 2, st.Hits)
	require.EqualValues(t, 1, st.Misses)
	require.Zero(t, st.Size)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	t.Parallel()

	cc := New[int]()
	v, ok := cc.Get("nope")
	require.False(t, ok)
	require.Zero(t, v)
}

func TestCache_NonPositiveTTLIsNotStored(t *testing.T) {
	t.Parallel()

	cc := New[int]()
	cc.Put("k", 1, 0)
	_, ok := cc.Get("k")
	require.False(t, ok)
}

func TestCache_BoundedByCapacity(t *testing.T) {
	t.Parallel()

	// Arrange: room for two entries
	cc := New[int](WithMaxItems(2))
	cc.Put("a", 1, time.Minute)
	cc.Put("b", 2, time.Minute)

	// Act: a third key pushes out the oldest
	cc.Put("c", 3, time.Minute)

	// Assert
	_, ok := cc.Get("a")
	require.False(t, ok)
	v, ok := cc.Get("c")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestCache_StatsKeepsRecencyOrder(t *testing.T) {
	t.Parallel()

	// Arrange: "a" is the least recently used
	cc := New[int](WithMaxItems(2))
	cc.Put("a", 1, time.Minute)
	cc.Put("b", 2, time.Minute)

	// Act: reading stats must not promote anything
	for range 5 {
		require.Equal(t, 2, cc.Stats().Size)
	}
	cc.Put("c", 3, time.Minute)

	// Assert
	_, ok := cc.Get("a")
	require.False(t, ok)
	_, ok = cc.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, cc.Stats().Size)
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	// Arrange
	cc := New[string]()
	cc.Put("BTC/USD", "67000", time.Minute)
	cc.Put("ETH/USD", "3500", time.Minute)
	cc.Put("XAU/USD", "2300", time.Minute)

	// Act + Assert: one key
	require.True(t, cc.Delete("BTC/USD"))
	require.False(t, cc.Delete("BTC/USD"))
	_, ok := cc.Get("BTC/USD")
	require.False(t, ok)
	_, ok = cc.Get("ETH/USD")
	require.True(t, ok)
	require.Equal(t, 2, cc.Stats().Size)

	// Act + Assert: everything, counters survive
	cc.Clear()
	_, ok = cc.Get("ETH/USD")
	require.False(t, ok)
	st := cc.Stats()
	require.Zero(t, st.Size)
	require.EqualValues(t, 1, st.Hits)
	require.EqualValues(t, 2, st.Misses)
}
