package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", MaxRetries: 3, RetryBase: time.Millisecond})
	require.NoError(t, err)
	return c
}

func TestClient_EmbedDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("Should send one batch request and order vectors by index", func(t *testing.T) {
		var got request
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.2,0.2]},{"index":0,"embedding":[0.1,0.1]}]}`))
		})
		vectors, err := c.EmbedDocuments(ctx, []string{"first", "second"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0.1, 0.1}, {0.2, 0.2}}, vectors)
		assert.Equal(t, []string{"first", "second"}, got.Input)
		assert.Equal(t, DefaultModel, got.Model)
		assert.Equal(t, 2, c.Dimension())
	})

	t.Run("Should accept Ollama response shapes", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[[1,2,3],[4,5,6]]}`))
		})
		vectors, err := c.EmbedDocuments(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, vectors)

		single := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[7,8]}`))
		})
		v, err := single.EmbedQuery(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []float32{7, 8}, v)
	})

	t.Run("Should retry rate limits and server errors", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
			}
		})
		v, err := c.EmbedQuery(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, v)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should give up after the retry ceiling", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := c.EmbedQuery(ctx, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "bad input", http.StatusBadRequest)
		})
		_, err := c.EmbedQuery(ctx, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad input")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should fail loudly on a count mismatch", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
		})
		_, err := c.EmbedDocuments(ctx, []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrCountMismatch)
	})

	t.Run("Should stop retrying when the context ends", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "10")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := c.EmbedQuery(cctx, "x")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("Should require a key for the public endpoint", func(t *testing.T) {
		_, err := NewClient(Config{APIKeyEnv: "IDUDES_TEST_MISSING_KEY"})
		assert.ErrorIs(t, err, domain.ErrConfig)
	})

	t.Run("Should read the key from the environment", func(t *testing.T) {
		t.Setenv("IDUDES_TEST_KEY", "from-env")
		c, err := NewClient(Config{APIKeyEnv: "IDUDES_TEST_KEY"})
		require.NoError(t, err)
		assert.Equal(t, "from-env", c.apiKey)
		assert.Equal(t, DefaultModel, c.Model())
	})

	t.Run("Should allow keyless local endpoints", func(t *testing.T) {
		c, err := NewClient(Config{BaseURL: "http://localhost:11434/v1/", Model: "nomic-embed-text", Dimensions: 768})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434/v1", c.baseURL)
		assert.Equal(t, 768, c.Dimension())
	})
}
