package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recorded
	exists   bool
}

func (f *fakeQdrant) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: body})
	exists := f.exists
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && !exists:
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	case r.URL.Path == "/collections/docs/points/search":
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"document_id":"doc-1","chunk":{"document_id":"doc-1","chunk_index":2,"text":"hello there"}}}
		]}`))
	default:
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	}
}

func newFake(t *testing.T, exists bool) (*fakeQdrant, *Storage) {
	t.Helper()
	f := &fakeQdrant{exists: exists}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return f, NewStorage(Config{URL: srv.URL + "/", Collection: "docs", APIKey: "secret"})
}

func TestInit(t *testing.T) {
	t.Run("Should create the collection and payload index when missing", func(t *testing.T) {
		f, store := newFake(t, false)
		require.NoError(t, store.Init(context.Background(), 4))

		require.Len(t, f.requests, 3)
		assert.Equal(t, http.MethodPut, f.requests[1].Method)
		vectors := f.requests[1].Body["vectors"].(map[string]any)
		assert.EqualValues(t, 4, vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
		assert.Equal(t, "/collections/docs/index", f.requests[2].Path)
	})

	t.Run("Should leave an existing collection alone", func(t *testing.T) {
		f, store := newFake(t, true)
		require.NoError(t, store.Init(context.Background(), 4))
		require.Len(t, f.requests, 1)
		assert.Equal(t, http.MethodGet, f.requests[0].Method)
	})
}

func TestReplaceDocument(t *testing.T) {
	t.Run("Should send delete and upsert as one batch with stable point ids", func(t *testing.T) {
		f, store := newFake(t, true)
		chunks := []domain.Chunk{
			{DocumentID: "doc-1", Index: 0, Text: "a"},
			{DocumentID: "doc-1", Index: 1, Text: "b"},
		}
		vectors := [][]float32{{1, 0}, {0, 1}}
		require.NoError(t, store.ReplaceDocument(context.Background(), "doc-1", chunks, vectors))

		require.Len(t, f.requests, 1)
		assert.Equal(t, "/collections/docs/points/batch", f.requests[0].Path)
		ops := f.requests[0].Body["operations"].([]any)
		require.Len(t, ops, 2)
		assert.Contains(t, ops[0], "delete")
		points := ops[1].(map[string]any)["upsert"].(map[string]any)["points"].([]any)
		require.Len(t, points, 2)
		assert.Equal(t, PointID("doc-1", 1), points[1].(map[string]any)["id"])
	})

	t.Run("Should derive the same point id for the same position", func(t *testing.T) {
		assert.Equal(t, PointID("doc-1", 3), PointID("doc-1", 3))
		assert.NotEqual(t, PointID("doc-1", 3), PointID("doc-1", 4))
		assert.NotEqual(t, PointID("doc-1", 3), PointID("doc-2", 3))
	})

	t.Run("Should surface server errors as storage errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		store := NewStorage(Config{URL: srv.URL, Collection: "docs"})
		err := store.ReplaceDocument(context.Background(), "doc-1",
			[]domain.Chunk{{Index: 0}}, [][]float32{{1}})
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestSearch(t *testing.T) {
	t.Run("Should decode the stored chunk from the payload", func(t *testing.T) {
		f, store := newFake(t, true)
		results, err := store.Search(context.Background(), []float32{1, 0}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "hello there", results[0].Chunk.Text)
		assert.Equal(t, 2, results[0].Chunk.Index)
		assert.InDelta(t, 0.91, results[0].Score, 1e-9)
		assert.EqualValues(t, 5, f.requests[0].Body["limit"])
	})
}
