// Package cache provides the solution cache consumed by the evaluator:
// a pluggable key-value store from design-point keys to evaluated
// solutions, with in-memory and compressed on-disk implementations.
package cache

import (
	"sync"

	"github.com/simoptlab/simopt/internal/models"
)

// SolutionCache maps design-point keys to their best-known solutions.
// Implementations must keep reads and writes for a given key linearizable:
// a Get must never observe a half-written entry.
type SolutionCache interface {
	// Get returns the cached solution for key, if any.
	Get(key models.InputKey) (*models.Solution, bool)
	// Put stores (or overwrites) the solution for key.
	Put(key models.InputKey, s *models.Solution) error
	// Retrieve batch-probes the cache, returning a partial map containing
	// only the keys that were found.
	Retrieve(keys []models.InputKey) map[models.InputKey]*models.Solution
}

// MemoryCache is the minimum-bar in-memory SolutionCache. Entries are
// replaced wholesale on Put, never mutated in place.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[models.InputKey]*models.Solution

	hits   int64
	misses int64
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[models.InputKey]*models.Solution)}
}

// Get returns the cached solution for key, if any.
func (c *MemoryCache) Get(key models.InputKey) (*models.Solution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return s, ok
}

// Put stores the solution for key, overwriting any previous entry.
func (c *MemoryCache) Put(key models.InputKey, s *models.Solution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = s
	return nil
}

// Retrieve batch-probes the cache for keys, returning the found subset.
func (c *MemoryCache) Retrieve(keys []models.InputKey) map[models.InputKey]*models.Solution {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := make(map[models.InputKey]*models.Solution)
	for _, key := range keys {
		if s, ok := c.entries[key]; ok {
			found[key] = s
			c.hits++
		} else {
			c.misses++
		}
	}
	return found
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts so far.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
