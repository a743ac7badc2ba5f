package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is the in-process embedding tier.
//
// Eviction is strictly insertion-ordered: reads go through Peek so they do
// not refresh recency, and a full cache always drops its oldest insertion.
type MemoryCache struct {
	entries *lru.Cache[string, []float32]
}

func NewMemoryCache(capacity int) (*MemoryCache, error) {
	entries, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries}, nil
}

func (c *MemoryCache) Get(key string) ([]float32, bool) {
	return c.entries.Peek(key)
}

func (c *MemoryCache) Put(key string, vector []float32) {
	c.entries.Add(key, vector)
}

func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

func (c *MemoryCache) Purge() {
	c.entries.Purge()
}
