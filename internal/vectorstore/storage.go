// Package vectorstore persists chunk vectors and answers similarity queries.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

const DefaultTopK = 5

// Store persists the chunks of one document at a time. ReplaceDocument is atomic: after it
// returns, the document has exactly the given chunks, or, on error, whatever it had before.
// Writing the same document twice is idempotent on (document id, chunk index).
type Store interface {
	Init(ctx context.Context, dimension int) error
	ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Close() error
}

// CheckBatch validates a ReplaceDocument call before any backend is touched.
func CheckBatch(documentID string, chunks []domain.Chunk, vectors [][]float32, dimension int) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrStorage)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrCountMismatch, len(chunks), len(vectors))
	}
	for i, c := range chunks {
		if c.DocumentID != "" && c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %d belongs to document %q", domain.ErrStorage, i, c.DocumentID)
		}
		if c.Index != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", domain.ErrStorage, i, c.Index)
		}
		if dimension > 0 && len(vectors[i]) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrStorage, i, len(vectors[i]), dimension)
		}
	}
	return nil
}

// EffectiveTopK applies the default to a non-positive topK.
func EffectiveTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}
