// Package cache provides a generic thread-safe LRU cache whose entries are
// invalidated by a version timestamp, used for per-conversation histories.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry holds cached data with the version it was loaded at.
type Entry[T any] struct {
	Data      T
	UpdatedAt time.Time
	StoredAt  time.Time
	access    uint64
}

// Cache is a thread-safe generic cache with LRU eviction.
type Cache[T any] struct {
	entries map[string]Entry[T]
	mu      sync.Mutex
	maxSize int
	clock   uint64
}

// New creates a new cache with the specified maximum number of entries.
func New[T any](maxSize int) *Cache[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[T]{
		entries: make(map[string]Entry[T]),
		maxSize: maxSize,
	}
}

// Get returns cached data if it was stored for the same updatedAt.
// A zero updatedAt matches any entry.
func (c *Cache[T]) Get(key string, updatedAt time.Time) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || (!updatedAt.IsZero() && !entry.UpdatedAt.Equal(updatedAt)) {
		var zero T
		return zero, false
	}

	c.clock++
	entry.access = c.clock
	c.entries[key] = entry
	return entry.Data, true
}

// Set stores data for key at version updatedAt.
func (c *Cache[T]) Set(key string, data T, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	c.entries[key] = Entry[T]{
		Data:      data,
		UpdatedAt: updatedAt,
		StoredAt:  time.Now(),
		access:    c.clock,
	}

	c.evictOldestLocked()
}

// Delete removes an entry from the cache.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteIf removes entries matching the predicate.
func (c *Cache[T]) DeleteIf(pred func(key string, entry Entry[T]) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if pred(key, entry) {
			delete(c.entries, key)
		}
	}
}

// InvalidateIfChanged removes the entry if its version differs from updatedAt.
func (c *Cache[T]) InvalidateIfChanged(key string, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && !entry.UpdatedAt.Equal(updatedAt) {
		delete(c.entries, key)
	}
}

// Len returns the number of entries in the cache.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes least recently used entries when over capacity.
// Must be called with lock held.
func (c *Cache[T]) evictOldestLocked() {
	excess := len(c.entries) - c.maxSize
	if excess <= 0 {
		return
	}

	type keyAccess struct {
		key    string
		access uint64
	}
	entries := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		entries = append(entries, keyAccess{key, entry.access})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].access < entries[j].access
	})

	for i := range excess {
		delete(c.entries, entries[i].key)
	}
}
