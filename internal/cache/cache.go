// Package cache provides the mutex-guarded lookup caches shared by the
// metadata providers. Entries live for the duration of one run; there is
// no eviction.
package cache

import "sync"

// Cache is a generic thread-safe key-value store.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
}

// New creates an empty Cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// Get returns the cached value and whether the key was present. A present
// zero value is distinct from an absent key, which lets callers cache
// "looked up but not found" sentinels.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a value, replacing any existing entry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Contains reports whether the key has been stored.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrCompute returns the cached value for key, computing and storing it
// if absent. The compute function runs outside the lock, so two racing
// callers may both compute; the first stored result wins and both callers
// observe it.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() V) V {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = v
	return v
}
