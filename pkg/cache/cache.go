// Package cache provides a thread-safe, size- and time-bounded cache for
// computed injection plans.
//
// The cache exists so that rapid repeated calls for the same (owner, query)
// pair (retries, multi-pass pipelines) do not rescan and rescore the
// memory store. Entries expire after a TTL and the structure evicts
// least-recently-used entries once capacity is exceeded.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      interface{}
	insertedAt time.Time
}

// Stats reports cache counters. All counters are cumulative since creation.
type Stats struct {
	// Hits is the number of Get calls that returned a live entry.
	Hits int64

	// Misses is the number of Get calls that found nothing or an expired entry.
	Misses int64

	// Evictions is the number of entries removed by capacity pressure or
	// lazy expiry.
	Evictions int64

	// Size is the current number of live entries.
	Size int
}

// MemoryCache is a mutex-protected LRU cache with per-entry TTL.
//
// All operations are safe under concurrent access from multiple simultaneous
// turns. The full check-expiry/evict/read-or-write sequence runs under one
// lock, so a check-then-act race between two turns cannot corrupt the cache
// or double-count evictions.
//
// The cache is constructed once at service start and injected into the
// components that need it; it is not a package-level singleton.
type MemoryCache struct {
	mu sync.Mutex

	entries map[string]*list.Element
	order   *list.List // front = most recently used

	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64

	// now is replaceable in tests to drive expiry deterministically.
	now func() time.Time
}

// DefaultMaxSize is the default entry capacity.
const DefaultMaxSize = 128

// DefaultTTL is the default entry time-to-live.
const DefaultTTL = time.Hour

// New creates a MemoryCache. Non-positive maxSize or ttl fall back to the
// defaults.
func New(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key, or (nil, false) if the key is absent or its
// entry has exceeded the TTL. Expired entries are removed on access.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(elem)
		c.evictions++
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Put inserts or replaces the value for key, refreshing its TTL. If the cache
// is at capacity the least-recently-used entry is evicted first.
func (c *MemoryCache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.insertedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	elem := c.order.PushFront(&entry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	})
	c.entries[key] = elem
}

// DeletePrefix removes every entry whose key begins with prefix and returns
// the number removed. Keys are namespaced by owner, so this drops all cached
// plans for one owner at once.
func (c *MemoryCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
			removed++
		}
	}
	return removed
}

// Delete removes key if present.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Clear removes all entries. Eviction counters are preserved.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// SetClock replaces the cache's time source. Intended for tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest != nil {
		c.removeLocked(oldest)
		c.evictions++
	}
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(elem)
}
