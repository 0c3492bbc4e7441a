package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a thread-safe LRU cache bounded both by entry count and by
// the total size of its values.
type LRUCache[K comparable, V any] struct {
	items   *lru.Cache[K, V]
	sizeOf  func(V) int64
	maxSize int64
	size    atomic.Int64
	mu      sync.Mutex
}

// NewLRUCache creates a cache holding at most capacity entries and at most
// maxSize units as measured by sizeOf.
func NewLRUCache[K comparable, V any](capacity int, maxSize int64, sizeOf func(V) int64) (*LRUCache[K, V], error) {
	c := &LRUCache[K, V]{
		sizeOf:  sizeOf,
		maxSize: maxSize,
	}

	items, err := lru.NewWithEvict[K, V](capacity, func(_ K, v V) {
		c.size.Add(-c.sizeOf(v))
	})
	if err != nil {
		return nil, err
	}
	c.items = items

	return c, nil
}

// Get retrieves an item from the cache
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	return c.items.Get(key)
}

// Set adds or updates an item in the cache
func (c *LRUCache[K, V]) Set(key K, value V) {
	dataSize := c.sizeOf(value)

	// If single item is larger than max size, don't cache it
	if dataSize > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items.Peek(key); ok {
		c.size.Add(dataSize - c.sizeOf(old))
		c.items.Add(key, value)
	} else {
		c.items.Add(key, value)
		c.size.Add(dataSize)
	}

	// Evict items until we have space
	for c.size.Load() > c.maxSize && c.items.Len() > 0 {
		c.items.RemoveOldest()
	}
}

// Delete removes an item from the cache
func (c *LRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

// Clear removes all items from the cache
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
	c.size.Store(0)
}

// Len returns the number of items in the cache
func (c *LRUCache[K, V]) Len() int {
	return c.items.Len()
}

// Size returns the current size of all values
func (c *LRUCache[K, V]) Size() int64 {
	return c.size.Load()
}
