package cache

import (
	"strings"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a small in-process TTL cache used as an L1 in front of Postgres
type Cache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry[V]
	now   func() time.Time
}

// New creates a cache whose entries live for ttl
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{ttl: ttl, items: map[string]entry[V]{}, now: time.Now}
}

// Set stores a value under key
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes all keys starting with prefix
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Prune drops expired entries and returns how many were removed
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired or not
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
