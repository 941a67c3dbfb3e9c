package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

func newMockStore(t *testing.T) (*Storage, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock, Config{}), mock
}

func testChunks(docID string, n int) ([]domain.Chunk, [][]float32) {
	chunks := make([]domain.Chunk, n)
	vectors := make([][]float32, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{DocumentID: docID, Index: i, TotalChunks: n, Text: "chunk text"}
		vectors[i] = []float32{float32(i), 1}
	}
	return chunks, vectors
}

func TestInit(t *testing.T) {
	t.Run("Should create the extension and a table sized to the dimension", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "document_embeddings"[\s\S]*vector\(2\)`).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))

		require.NoError(t, store.Init(context.Background(), 2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject a non-positive dimension without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		assert.Error(t, store.Init(context.Background(), 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should wrap database failures as storage errors", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("CREATE EXTENSION").WillReturnError(errors.New("permission denied"))
		err := store.Init(context.Background(), 2)
		assert.ErrorIs(t, err, domain.ErrStorage)
	})
}

func TestReplaceDocument(t *testing.T) {
	t.Run("Should trim stale rows and upsert every chunk in one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		store.dimension = 2
		chunks, vectors := testChunks("doc-1", 2)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "document_embeddings" WHERE document_id = \$1 AND chunk_index >= \$2`).
			WithArgs("doc-1", 2).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		for i := range chunks {
			mock.ExpectExec(`INSERT INTO "document_embeddings"`).
				WithArgs("doc-1", i, "chunk text", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceDocument(context.Background(), "doc-1", chunks, vectors))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when an upsert fails", func(t *testing.T) {
		store, mock := newMockStore(t)
		chunks, vectors := testChunks("doc-1", 2)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM").
			WithArgs("doc-1", 2).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO").
			WithArgs("doc-1", 0, "chunk text", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO").
			WithArgs("doc-1", 1, "chunk text", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.ReplaceDocument(context.Background(), "doc-1", chunks, vectors)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.Contains(t, err.Error(), "upsert chunk 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject mismatched batches before opening a transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		chunks, vectors := testChunks("doc-1", 2)

		err := store.ReplaceDocument(context.Background(), "doc-1", chunks, vectors[:1])
		assert.ErrorIs(t, err, domain.ErrCountMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSearch(t *testing.T) {
	t.Run("Should decode stored chunks with their similarity", func(t *testing.T) {
		store, mock := newMockStore(t)
		raw, err := json.Marshal(domain.Chunk{DocumentID: "doc-1", Index: 3, Text: "hello"})
		require.NoError(t, err)
		mock.ExpectQuery(`SELECT metadata, 1 - \(embedding <=> \$1\) AS score FROM "document_embeddings"`).
			WithArgs(pgxmock.AnyArg(), 5).
			WillReturnRows(pgxmock.NewRows([]string{"metadata", "score"}).AddRow(raw, 0.75))

		results, err := store.Search(context.Background(), []float32{1, 0}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "hello", results[0].Chunk.Text)
		assert.Equal(t, 3, results[0].Chunk.Index)
		assert.InDelta(t, 0.75, results[0].Score, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject a query of the wrong dimension", func(t *testing.T) {
		store, _ := newMockStore(t)
		store.dimension = 3
		_, err := store.Search(context.Background(), []float32{1, 0}, 2)
		assert.Error(t, err)
	})
}

func TestDeleteDocument(t *testing.T) {
	t.Run("Should delete every row of the document", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM "document_embeddings" WHERE document_id = \$1`).
			WithArgs("doc-9").
			WillReturnResult(pgxmock.NewResult("DELETE", 4))
		require.NoError(t, store.DeleteDocument(context.Background(), "doc-9"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should use a custom table name when configured", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := New(mock, Config{Table: "podcast_chunks"})
		mock.ExpectExec(`DELETE FROM "podcast_chunks"`).WithArgs("doc-9").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		require.NoError(t, store.DeleteDocument(context.Background(), "doc-9"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
