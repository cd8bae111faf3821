package resolve

import (
	"strings"
	"sync"
)

// Cache holds parsed metadata keyed by (location, version). Entries
// are immutable once stored; a refresh drops the location's entries
// instead of mutating them.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Metadata
}

// NewCache creates an empty metadata cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Metadata)}
}

func cacheKey(location, version string) string {
	return location + "#" + version
}

// Get looks up a cached entry.
func (c *Cache) Get(location, version string) (*Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[cacheKey(location, version)]
	return m, ok
}

// Put stores an entry.
func (c *Cache) Put(location, version string, m *Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(location, version)] = m
}

// Invalidate drops every entry for a table location.
func (c *Cache) Invalidate(location string) {
	prefix := location + "#"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
