package cache

import (
	"context"
	"sync"
	"time"

	"github.com/marstr/collection/v2"
)

// DefaultMaxItems bounds the cache when no capacity is configured.
const DefaultMaxItems = 1024

// entry stores one cached value with its expiry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// Cache is a TTL cache keyed by string. Capacity is bounded by an LRU; an
// entry is served only while now < expiresAt.
type Cache[V any] struct {
	now      func() time.Time
	maxItems uint

	mu     sync.Mutex
	lru    *collection.LRUCache[string, entry[V]]
	hits   int64
	misses int64
}

type Option func(*options)

type options struct {
	now      func() time.Time
	maxItems uint
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMaxItems(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxItems = uint(n)
		}
	}
}

func New[V any](opts ...Option) *Cache[V] {
	o := options{now: time.Now, maxItems: DefaultMaxItems}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		now:      o.now,
		maxItems: o.maxItems,
		lru:      collection.NewLRUCache[string, entry[V]](o.maxItems),
	}
}

// Get returns the value for key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if ok && c.now().Before(e.expiresAt) {
		c.hits++
		return e.value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Put stores value under key for ttl. A non-positive ttl is a no-op.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Put(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Delete drops key. It reports whether an entry was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru = collection.NewLRUCache[string, entry[V]](c.maxItems)
}

// Stats reports hit/miss counters and the number of live entries. It does
// not change recency order.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	size := c.lru.Enumerate(context.Background()).Count(func(e entry[V]) bool {
		return now.Before(e.expiresAt)
	})
	return Stats{Hits: c.hits, Misses: c.misses, Size: size}
}
