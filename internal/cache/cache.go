package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMaxSize = 1000
	defaultTTL     = time.Hour
)

// Stats is a point-in-time snapshot of cache activity. Reading it never
// mutates the underlying counters.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Evictions uint64  `json:"evictions"`
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a bounded LRU cache with per-entry TTL. Expiry is checked lazily
// on Get; there is no background sweep, so an expired entry occupies its
// slot until it is looked up or evicted by capacity pressure. Safe for
// concurrent use: a single mutex guards the store and the counters, held
// only for the duration of one operation.
type Cache[V any] struct {
	mu       sync.Mutex
	store    *lru.Cache[string, entry[V]]
	capacity int
	ttl      time.Duration

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

// New creates a cache with the given capacity and TTL. Non-positive values
// fall back to the package defaults (1000 entries, 1 hour).
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	store, err := lru.New[string, entry[V]](maxSize)
	if err != nil {
		// lru.New only fails on non-positive size, which is guarded above.
		panic(err)
	}
	return &Cache[V]{
		store:    store,
		capacity: maxSize,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value for key when present and unexpired. An expired
// entry is deleted and counted as a miss. A hit marks the entry
// most-recently-used.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.store.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set inserts or replaces the value for key at the most-recently-used
// position with a fresh timestamp. When the cache is at capacity and key is
// new, the least-recently-used entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted := c.store.Add(key, entry[V]{value: value, storedAt: c.now()}); evicted {
		c.evictions++
	}
}

// Invalidate removes key from the cache. Removing an absent key is a no-op.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
}

// Clear drops every entry. Counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Contains reports whether key is present, ignoring expiry and without
// touching recency or the hit/miss counters.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Contains(key)
}

// Stats returns a snapshot of cache counters. HitRate is 0 when the cache
// has not been read yet.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      c.store.Len(),
		MaxSize:   c.capacity,
		Evictions: c.evictions,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
