package fallback

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func val(n int) map[string]interface{} {
	return map[string]interface{}{"n": n}
}

func TestCacheGetSet(t *testing.T) {
	cache := NewCache(10, time.Minute)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("a", val(1), 0)
	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, val(1), got)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(10, time.Minute)

	cache.Set("short", val(1), 10*time.Millisecond)
	_, ok := cache.Get("short")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheFIFOEviction(t *testing.T) {
	cache := NewCache(3, time.Minute)

	for i := 1; i <= 3; i++ {
		cache.Set(fmt.Sprintf("k%d", i), val(i), 0)
	}

	// Reading k1 must not protect it: eviction is insertion-order.
	_, ok := cache.Get("k1")
	require.True(t, ok)

	cache.Set("k4", val(4), 0)

	_, ok = cache.Get("k1")
	assert.False(t, ok, "oldest inserted entry evicted first")
	for i := 2; i <= 4; i++ {
		_, ok := cache.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCacheOverwritePreservesInsertionOrder(t *testing.T) {
	cache := NewCache(2, time.Minute)

	cache.Set("a", val(1), 0)
	cache.Set("b", val(2), 0)
	cache.Set("a", val(10), 0) // overwrite, still oldest
	cache.Set("c", val(3), 0)  // evicts a

	_, ok := cache.Get("a")
	assert.False(t, ok)

	got, ok := cache.Get("b")
	require.True(t, ok)
	assert.Equal(t, val(2), got)
}

func TestCacheSweep(t *testing.T) {
	cache := NewCache(10, time.Minute)

	cache.Set("fresh", val(1), time.Minute)
	cache.Set("stale1", val(2), 5*time.Millisecond)
	cache.Set("stale2", val(3), 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 2, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 0, cache.Sweep())
}

func TestCacheClearByPattern(t *testing.T) {
	cache := NewCache(10, time.Minute)

	cache.Set("churn.predict:aaa", val(1), 0)
	cache.Set("churn.predict:bbb", val(2), 0)
	cache.Set("demand.forecast:ccc", val(3), 0)

	assert.Equal(t, 2, cache.Clear("churn.predict"))
	assert.Equal(t, 1, cache.Len())

	assert.Equal(t, 1, cache.Clear(""))
	assert.Equal(t, 0, cache.Len())
}

func TestCacheStats(t *testing.T) {
	cache := NewCache(2, time.Minute)

	cache.Set("a", val(1), 0)
	cache.Get("a")       // hit
	cache.Get("missing") // miss
	cache.Set("b", val(2), 0)
	cache.Set("c", val(3), 0) // evicts a

	s := cache.Stats()
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 2, s.MaxSize)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Evicted)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}
