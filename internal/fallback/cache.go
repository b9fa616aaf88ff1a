package fallback

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// entry is one cached fallback response.
type entry struct {
	key       string
	value     map[string]interface{}
	createdAt time.Time
	expiresAt time.Time
}

// CacheStats reports cache effectiveness for the admin API.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Expired uint64  `json:"expired"`
	Evicted uint64  `json:"evicted"`
	HitRate float64 `json:"hit_rate"`
}

// Cache stores last-known-good and simulated responses with TTL expiry and
// FIFO capacity eviction. Eviction is insertion-order, not access-order: a
// hit does not refresh an entry's position.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = oldest inserted
	maxSize    int
	defaultTTL time.Duration

	hits    uint64
	misses  uint64
	expired uint64
	evicted uint64
}

// NewCache creates a cache holding at most maxSize entries.
func NewCache(maxSize int, defaultTTL time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// Get returns a non-expired entry. Expired entries are removed
// opportunistically on read.
func (c *Cache) Get(key string) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(elem)
		c.expired++
		c.misses++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Set stores value under key. A ttl of zero uses the cache default. When at
// capacity, the oldest-inserted entry is evicted first.
func (c *Cache) Set(key string, value map[string]interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if elem, ok := c.entries[key]; ok {
		// Overwrite in place; insertion order is preserved.
		e := elem.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evicted++
	}

	e := &entry{key: key, value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.entries[key] = c.order.PushBack(e)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if now.After(elem.Value.(*entry).expiresAt) {
			c.removeLocked(elem)
			removed++
		}
	}

	c.expired += uint64(removed)
	return removed
}

// Clear removes entries whose key contains pattern. An empty pattern clears
// everything. Returns the number of removed entries.
func (c *Cache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if pattern == "" || strings.Contains(elem.Value.(*entry).key, pattern) {
			c.removeLocked(elem)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: c.expired,
		Evicted: c.evicted,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	return s
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(elem)
}
