// Package cache provides a generic TTL-bounded, capacity-capped cache used
// both for extracted feature vectors and for recent scoring decisions.
// Eviction is amortized: expired entries are never actively swept; an
// expired entry is removed when a lookup finds it, and otherwise dropped
// when a write replaces the same key or evicts it as the LRU tail.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe, TTL-bounded, size-capped LRU cache.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, entry[V]]
	ttl time.Duration
}

// New builds a Cache holding at most capacity entries, each valid for ttl
// after insertion.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	c, _ := lru.New[K, entry[V]](capacity)
	return &Cache[K, V]{lru: c, ttl: ttl}
}

// Get returns the cached value for key, or ok=false if absent or expired.
// An expired hit is treated as a miss and removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	var zero V
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Put inserts or replaces the value for key, resetting its TTL.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)})
}

// Len reports the number of entries currently stored, including any not
// yet lazily expired.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
