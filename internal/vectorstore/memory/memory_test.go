package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

func chunksFor(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{DocumentID: docID, Index: i, TotalChunks: n}
	}
	return out
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should rank by cosine similarity and honor topK", func(t *testing.T) {
		s := NewStorage()
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 3),
			[][]float32{{1, 0}, {0, 1}, {1, 1}}))

		results, err := s.Search(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].Chunk.Index)
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)
		assert.Equal(t, 2, results[1].Chunk.Index)
	})

	t.Run("Should replace a document wholesale", func(t *testing.T) {
		s := NewStorage()
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 3),
			[][]float32{{1, 0}, {0, 1}, {1, 1}}))
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 1), [][]float32{{1, 0}}))
		assert.Len(t, s.Chunks("doc-1"), 1)
	})

	t.Run("Should keep the previous chunks when a batch is rejected", func(t *testing.T) {
		s := NewStorage()
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 2), [][]float32{{1, 0}, {0, 1}}))

		err := s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 2), [][]float32{{1, 0}})
		assert.ErrorIs(t, err, domain.ErrCountMismatch)
		assert.Len(t, s.Chunks("doc-1"), 2)
	})

	t.Run("Should not alias caller vectors", func(t *testing.T) {
		s := NewStorage()
		require.NoError(t, s.Init(ctx, 2))
		vec := []float32{1, 0}
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 1), [][]float32{vec}))
		vec[0], vec[1] = 0, 1

		results, err := s.Search(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	})

	t.Run("Should forget deleted documents", func(t *testing.T) {
		s := NewStorage()
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.ReplaceDocument(ctx, "doc-1", chunksFor("doc-1", 1), [][]float32{{1, 0}}))
		require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
		results, err := s.Search(ctx, []float32{1, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Should reject an invalid dimension", func(t *testing.T) {
		assert.Error(t, NewStorage().Init(ctx, 0))
	})
}
