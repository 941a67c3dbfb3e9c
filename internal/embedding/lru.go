package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache keeps the most recently used vectors in process memory.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be greater than zero, got %d", size)
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init lru cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

func (c *LRUCache) Set(_ context.Context, key string, vector []float32) {
	c.cache.Add(key, cloneVector(vector))
}

func (c *LRUCache) Len() int { return c.cache.Len() }
