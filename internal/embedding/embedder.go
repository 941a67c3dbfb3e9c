// Package embedding defines the embedding collaborator and the caches that sit in front of it.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Embedder converts chunk text into vectors. EmbedDocuments returns exactly one vector per
// input, in input order, or an error; it never returns a partial result.
type Embedder interface {
	Name() string
	Model() string
	// Dimension is 0 until the first vector has been produced by embedders that learn it lazily.
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that must fit a model to the corpus before use.
type Preparer interface {
	Prepare(corpus []string) error
	Prepared() bool
}

// Cache stores vectors by key. Misses and backend failures both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// CacheKey identifies a text embedded by a given model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
