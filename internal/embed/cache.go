package embed

import "sync"

// cacheKey identifies a cached vector by the model that produced it and the
// hash of its input.
type cacheKey struct {
	model     string
	inputHash string
}

// Cache is a thread-safe, run-scoped embedding cache. Issues in one page are
// processed concurrently, so identical templated reports can race to embed
// the same input; the cache ensures only the first call pays for it.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]float32
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]float32)}
}

// Get returns the cached vector for (model, inputHash), if present.
func (c *Cache) Get(model, inputHash string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey{model, inputHash}]
	return v, ok
}

// Put stores a vector under (model, inputHash).
func (c *Cache) Put(model, inputHash string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{model, inputHash}] = v
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
