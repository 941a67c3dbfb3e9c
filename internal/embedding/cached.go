package embedding

import (
	"context"
	"fmt"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

// CachedEmbedder serves repeated texts from a cache and sends only misses to the wrapped embedder.
type CachedEmbedder struct {
	Embedder
	cache Cache
}

func NewCached(inner Embedder, cache Cache) *CachedEmbedder {
	return &CachedEmbedder{Embedder: inner, cache: cache}
}

// Unwrap returns the wrapped embedder.
func (c *CachedEmbedder) Unwrap() Embedder { return c.Embedder }

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	order := make([]string, 0, len(texts))
	for i, text := range texts {
		if v, ok := c.cache.Get(ctx, CacheKey(c.Model(), text)); ok {
			results[i] = v
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}

	vectors, err := c.Embedder.EmbedDocuments(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(order) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", domain.ErrCountMismatch, len(order), len(vectors))
	}
	for i, text := range order {
		c.cache.Set(ctx, CacheKey(c.Model(), text), vectors[i])
		for _, idx := range missing[text] {
			results[idx] = cloneVector(vectors[i])
		}
	}
	return results, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.Model(), text)
	if v, ok := c.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := c.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, v)
	return v, nil
}
