package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(maxSize int, ttl time.Duration) (*Cache[string], *time.Time) {
	c := New[string](maxSize, ttl)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheGetSet(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestCacheLRUEviction(t *testing.T) {
	c, _ := newTestCache(3, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// Touch "a" so "b" becomes the eviction victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", "4")
	require.Equal(t, 3, c.Len())
	require.False(t, c.Contains("b"))
	require.True(t, c.Contains("a"))
	require.True(t, c.Contains("c"))
	require.True(t, c.Contains("d"))
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCacheEvictsOldestWithoutAccess(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	require.False(t, c.Contains("a"))
	require.True(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
}

func TestCacheTTLExpiry(t *testing.T) {
	c, now := newTestCache(4, time.Minute)

	c.Set("a", "1")

	*now = now.Add(time.Minute - time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	*now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Len(), "expired entry should be deleted on access")

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestCacheContainsIgnoresExpiry(t *testing.T) {
	c, now := newTestCache(4, time.Minute)

	c.Set("a", "1")
	*now = now.Add(2 * time.Minute)

	require.True(t, c.Contains("a"))
	hits := c.Stats().Hits
	misses := c.Stats().Misses
	require.Equal(t, uint64(0), hits)
	require.Equal(t, uint64(0), misses)
}

func TestCacheSetIdempotent(t *testing.T) {
	c, now := newTestCache(4, time.Minute)

	c.Set("a", "1")
	*now = now.Add(30 * time.Second)
	c.Set("a", "1")

	require.Equal(t, 1, c.Len())

	// The re-insert refreshed the timestamp, so the entry survives past the
	// original deadline.
	*now = now.Add(45 * time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestCacheSetRefreshesRecency(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "updated")
	c.Set("c", "3")

	require.False(t, c.Contains("b"), "b was least recently used after a's re-insert")
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "updated", v)
}

func TestCacheInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	c.Invalidate("a")
	c.Invalidate("a") // second invalidation is a no-op
	require.False(t, c.Contains("a"))
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Equal(t, 0, c.Len())
	// Eviction counter is not inflated by Invalidate or Clear.
	require.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCacheStatsIdempotent(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	require.Equal(t, 0.0, c.Stats().HitRate)

	c.Set("a", "1")
	c.Get("a")
	c.Get("missing")

	first := c.Stats()
	second := c.Stats()
	require.Equal(t, first, second)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](64, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Set(key, i)
				c.Get(key)
				if i%10 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	require.LessOrEqual(t, stats.Size, 64)
	require.Equal(t, uint64(1600), stats.Hits+stats.Misses)
}
