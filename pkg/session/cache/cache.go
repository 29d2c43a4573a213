// Package cache is a generic LRU+TTL cache used for the Query Cache,
// Statement Pool metadata cache, Result Cache, and Enum Cache spec.md
// §4.5 describes, grounded on original_source/src/cache/{result_cache,
// statement_pool,enum_cache}.rs's shared shape: a bounded map with
// time-to-live expiry, LRU eviction on overflow, and hit/miss/eviction
// counters. The teacher repo has no equivalent (pkg/store caches nothing),
// so this is built fresh in the teacher's general style (small struct,
// mutex-guarded map, explicit Stats snapshot) rather than lifted from a
// single teacher file.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a Cache's hit/miss/eviction
// counters. Nothing in this module writes them to the
// __pgsqlite_cache_stats table the result_cache_metrics migration creates.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is a fixed-capacity, TTL-expiring, least-recently-used cache.
// Capacity <= 0 means unbounded (TTL expiry still applies). TTL <= 0
// means entries never expire on their own.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[K]*list.Element
	stats    Stats
}

func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    map[K]*list.Element{},
	}
}

// Get returns the cached value for key, evicting it first if its TTL has
// elapsed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	ent := el.Value.(*entry[K, V])
	if c.ttl > 0 && time.Now().After(ent.expiresAt) {
		c.removeElement(el)
		c.stats.Misses++
		c.stats.Evictions++
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	return ent.value, true
}

// Put inserts or updates key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		el.Value.(*entry[K, V]).expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear empties the cache without resetting its statistics.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = map[K]*list.Element{}
}

// Len returns the current number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ll.Len()
}

// StatsSnapshot returns a copy of the cache's current counters.
func (c *Cache[K, V]) StatsSnapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = c.ll.Len()
	return s
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	ent := el.Value.(*entry[K, V])
	delete(c.items, ent.key)
}
