package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

type entry struct {
	chunk  domain.Chunk
	vector []float32
}

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]entry
	order     []string
}

var _ vectorstore.Store = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{docs: make(map[string][]entry)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	return nil
}

func (s *Storage) ReplaceDocument(_ context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.CheckBatch(documentID, chunks, vectors, s.dimension); err != nil {
		return err
	}
	entries := make([]entry, len(chunks))
	for i := range chunks {
		entries[i] = entry{chunk: chunks[i], vector: slices.Clone(vectors[i])}
	}
	if _, ok := s.docs[documentID]; !ok {
		s.order = append(s.order, documentID)
	}
	s.docs[documentID] = entries
	return nil
}

func (s *Storage) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == documentID })
	return nil
}

// Search ranks every stored chunk by cosine similarity. Ties keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vector), s.dimension)
	}
	var results []domain.SearchResult
	for _, id := range s.order {
		for _, e := range s.docs[id] {
			results = append(results, domain.SearchResult{Chunk: e.chunk, Score: cosine(e.vector, vector)})
		}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return results[:min(len(results), vectorstore.EffectiveTopK(topK))], nil
}

// Chunks returns the stored chunks of a document in index order.
func (s *Storage) Chunks(documentID string) []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, 0, len(s.docs[documentID]))
	for _, e := range s.docs[documentID] {
		out = append(out, e.chunk)
	}
	return out
}

func (s *Storage) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
