// Package memcache implements the Embedding/Plan Caches (C5): generic
// LRU+TTL caches for plans and embeddings, plus a Brotli-backed
// hot/cold compressed-entity cache. Grounded on steveyegge-beads' use of
// hashicorp/golang-lru/v2's expirable LRU for TTL-bounded caches.
package memcache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats reports cache effectiveness: hits, misses, evictions, hit rate.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns Hits/(Hits+Misses), or 0 when there have been no
// lookups at all.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a generic LRU+TTL cache. TTL expiry is evaluated by the
// underlying expirable.LRU, which uses a monotonic clock internally and
// treats an entry as expired once its TTL has elapsed, not
// strictly-after.
type Cache[V any] struct {
	mu    sync.Mutex
	lru   *expirable.LRU[string, V]
	stats Stats
}

// New constructs a Cache holding at most maxEntries, each expiring ttl
// after insertion.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	c := &Cache[V]{}
	c.lru = expirable.NewLRU[string, V](maxEntries, func(key string, value V) {
		c.mu.Lock()
		c.stats.Evictions++
		c.mu.Unlock()
	}, ttl)
	return c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	c.mu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()
	return v, ok
}

// Set stores value under key, resetting its TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Remove evicts key, if present.
func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Len returns the number of live (unexpired) entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// NormalizePlanKey implements plan-cache key normalization: lowercase,
// collapse internal whitespace, trim, so keys that differ only in case
// or spacing map to the same entry.
func NormalizePlanKey(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	fields := strings.Fields(lower)
	return strings.Join(fields, " ")
}
