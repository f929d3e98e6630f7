// Package memory implements the in-process tier-1 cache: a fixed-capacity
// LRU with optional per-entry expiry. It performs no I/O and has no
// background goroutines; expired entries are removed lazily at read time.
package memory

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSize is the capacity used when none is configured.
const DefaultMaxSize = 1000

// Cache is a capacity-bounded LRU cache mapping string keys to arbitrary
// values. Values are held as-is; the cache never inspects or copies them.
//
// All operations are O(1) amortized: the LRU order lives in a doubly linked
// list with a map from key to list element, so touching an entry and evicting
// the coldest entry are both constant-time.
//
// A Cache is safe for concurrent use. The reference behavior this was ported
// from relied on the host runtime for safety; here the lock is explicit.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	items   map[string]*list.Element

	hits   uint64
	misses uint64
}

// entry is the list element payload. expiresAt.IsZero() means no age expiry.
type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// New creates a cache holding at most maxSize entries.
// A maxSize of zero or less falls back to DefaultMaxSize.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the value for key and whether it was present and unexpired.
// A hit moves the entry to the most-recently-used position. An expired entry
// is deleted as a side effect of the read and counts as a miss.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set inserts or replaces the entry for key. A ttl of zero or less means the
// entry never expires from age (it can still be evicted for capacity).
// Replacing an existing key refreshes its value, expiry, and LRU position in
// one step. If the insert pushes occupancy past capacity, least-recently-used
// entries are evicted until the cache fits.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// Delete removes the entry for key if present. Deleting an absent key is a
// no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries and resets the hit and miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
}

// Len returns the current number of entries, including any that have expired
// but have not yet been read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats holds a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
}

// Stats returns current hit/miss counters and occupancy.
// The hit rate is 0.0 before any lookup has occurred.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.order.Len(),
		MaxSize: c.maxSize,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// removeElement unlinks an element from both the list and the map.
// Callers must hold c.mu.
func (c *Cache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
