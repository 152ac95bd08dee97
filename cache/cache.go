// Package cache provides a generic bounded key/value container with LRU
// eviction and hit/miss accounting, used for hot record lookups.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Sizer estimates the memory footprint of one entry in bytes. A nil sizer
// makes the cache count-bounded only.
type Sizer[K comparable, V any] func(key K, value V) int

// Cache is a memory-bounded LRU map. Recency is updated on access: a run
// of inserts with no intervening Get evicts in insertion order, earliest
// first.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int
	sizer      Sizer[K, V]
	entries    map[K]*list.Element
	order      *list.List // front = most recently used
	bytes      int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int
}

// Stats reports cache occupancy and cumulative accounting.
type Stats struct {
	Entries   int     `json:"entries"`
	Bytes     int     `json:"bytes"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// New creates a cache bounded by maxEntries and maxBytes. Either bound may
// be zero to disable it; at least one bound should be set.
func New[K comparable, V any](maxEntries, maxBytes int, sizer Sizer[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		sizer:      sizer,
		entries:    make(map[K]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached value for key, updating recency on a hit. A miss
// leaves the cache contents untouched.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put inserts or replaces the value for key, evicting least-recently-used
// entries until both the entry and byte bounds hold.
func (c *Cache[K, V]) Put(key K, value V) {
	size := 0
	if c.sizer != nil {
		size = c.sizer(key, value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry[K, V])
		c.bytes += size - e.size
		e.value = value
		e.size = size
		c.order.MoveToFront(elem)
		c.evictLocked(0, 0)
		return
	}

	c.evictLocked(1, size)
	elem := c.order.PushFront(&entry[K, V]{key: key, value: value, size: size})
	c.entries[key] = elem
	c.bytes += size
}

// Remove drops key from the cache, reporting whether it was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// evictLocked removes oldest-accessed entries until adding newEntries more
// entries of incoming total bytes satisfies both bounds.
func (c *Cache[K, V]) evictLocked(newEntries, incoming int) {
	for c.order.Len() > 0 {
		overCount := c.maxEntries > 0 && len(c.entries)+newEntries > c.maxEntries
		overBytes := c.maxBytes > 0 && c.bytes+incoming > c.maxBytes
		if !overCount && !overBytes {
			return
		}
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
		c.evictions.Add(1)
	}
}

func (c *Cache[K, V]) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry[K, V])
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.bytes -= e.size
}

// Len returns the current entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache without touching cumulative counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.order.Init()
	c.bytes = 0
}

// Stats returns occupancy and cumulative hit/miss/eviction counts. HitRate
// is hits/(hits+misses), 0.0 before any access.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	bytes := c.bytes
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	st := Stats{
		Entries:   entries,
		Bytes:     bytes,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}
