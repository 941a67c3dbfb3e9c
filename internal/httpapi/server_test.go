package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/service"
)

type fakeService struct {
	ingested []domain.RawDocument
	err      error
	deleted  string
	topK     int
	ctxLog   logger.Logger
}

type logEntry struct {
	level  string
	msg    string
	fields []any
}

// recordingLogger keeps every entry, including those written through With children.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  []any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, fields: append(append([]any{}, l.fields...), kv...)})
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("error", msg, kv) }

func (l *recordingLogger) With(kv ...any) logger.Logger {
	return &recordingLogger{mu: l.mu, entries: l.entries, fields: append(append([]any{}, l.fields...), kv...)}
}

func (l *recordingLogger) field(e logEntry, key string) any {
	for i := 0; i+1 < len(e.fields); i += 2 {
		if e.fields[i] == key {
			return e.fields[i+1]
		}
	}
	return nil
}

func (f *fakeService) IngestDocument(_ context.Context, doc domain.RawDocument) (*service.DocumentReport, error) {
	f.ingested = append(f.ingested, doc)
	if f.err != nil {
		return nil, f.err
	}
	return &service.DocumentReport{DocumentID: doc.ID, Chunks: 2}, nil
}

func (f *fakeService) Preview(_ context.Context, doc domain.RawDocument) (*pipeline.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{DocumentID: doc.ID, Chunks: []domain.Chunk{{Text: "preview"}}}, nil
}

func (f *fakeService) Query(ctx context.Context, q string, topK int) ([]domain.SearchResult, error) {
	f.topK = topK
	f.ctxLog, _ = ctx.Value(logger.LoggerCtxKey).(logger.Logger)
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SearchResult{{Chunk: domain.Chunk{Text: "hit for " + q}, Score: 0.5}}, nil
}

func (f *fakeService) DeleteDocument(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	t.Run("Should report health", func(t *testing.T) {
		rec := do(t, NewRouter(&fakeService{}, nil, 1<<20), http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ok"`)
	})

	t.Run("Should ingest a document and assign an id", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(t, NewRouter(svc, nil, 1<<20), http.MethodPost, "/v1/documents",
			`{"content":"some text","content_type":"podcast"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, svc.ingested, 1)
		assert.NotEmpty(t, svc.ingested[0].ID)
		assert.Equal(t, "podcast", svc.ingested[0].ContentType)
	})

	t.Run("Should map pipeline errors to status codes", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{&domain.StageError{Stage: domain.StageValidate, Err: domain.ErrInput}, http.StatusBadRequest},
			{&domain.StageError{Stage: domain.StageValidate, Err: domain.ErrOversize}, http.StatusRequestEntityTooLarge},
			{&domain.StageError{Stage: domain.StageSegment, Err: domain.ErrConfig}, http.StatusUnprocessableEntity},
			{&domain.StageError{Stage: domain.StageEmbed, Err: fmt.Errorf("%w: timeout", domain.ErrEmbedding)}, http.StatusServiceUnavailable},
			{&domain.StageError{Stage: domain.StageEmbed, Err: domain.ErrCountMismatch}, http.StatusBadGateway},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			svc := &fakeService{err: tc.err}
			rec := do(t, NewRouter(svc, nil, 1<<20), http.MethodPost, "/v1/documents", `{"id":"d1","content":"x"}`)
			assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		}
	})

	t.Run("Should expose stage and retryability in error bodies", func(t *testing.T) {
		svc := &fakeService{err: &domain.StageError{Stage: domain.StagePersist, DocumentID: "d1", Err: domain.ErrStorage}}
		rec := do(t, NewRouter(svc, nil, 1<<20), http.MethodPost, "/v1/documents", `{"id":"d1","content":"x"}`)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.StagePersist, body.Stage)
		assert.True(t, body.Retryable)
	})

	t.Run("Should reject malformed and oversized bodies", func(t *testing.T) {
		h := NewRouter(&fakeService{}, nil, 32)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/chunks/preview", "{").Code)
		big := `{"content":"` + strings.Repeat("a", 100) + `"}`
		assert.Equal(t, http.StatusRequestEntityTooLarge, do(t, h, http.MethodPost, "/v1/chunks/preview", big).Code)
	})

	t.Run("Should preview chunks", func(t *testing.T) {
		rec := do(t, NewRouter(&fakeService{}, nil, 1<<20), http.MethodPost, "/v1/chunks/preview", `{"content":"x"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "preview")
	})

	t.Run("Should search with a validated top_k", func(t *testing.T) {
		svc := &fakeService{}
		h := NewRouter(svc, nil, 1<<20)
		rec := do(t, h, http.MethodGet, "/v1/search?q=pricing&top_k=3", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, svc.topK)
		var body searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Results, 1)
		assert.Equal(t, "hit for pricing", body.Results[0].Chunk.Text)

		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/search", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/search?q=x&top_k=abc", "").Code)
	})

	t.Run("Should delete by path id", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(t, NewRouter(svc, nil, 1<<20), http.MethodDelete, "/v1/documents/doc-9", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "doc-9", svc.deleted)
	})
}

func TestRequestLogger(t *testing.T) {
	t.Run("Should hand the service a logger tagged with the request id", func(t *testing.T) {
		svc := &fakeService{}
		log := newRecordingLogger()
		rec := do(t, NewRouter(svc, log, 1<<20), http.MethodGet, "/v1/search?q=pricing", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.ctxLog)

		svc.ctxLog.Info("handled")
		entries := *log.entries
		require.Len(t, entries, 1)
		assert.NotEmpty(t, log.field(entries[0], "request_id"))
		assert.Equal(t, "/v1/search", log.field(entries[0], "path"))
	})

	t.Run("Should log server errors under the request id", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("%w: qdrant down", domain.ErrStorage)}
		log := newRecordingLogger()
		rec := do(t, NewRouter(svc, log, 1<<20), http.MethodGet, "/v1/search?q=pricing", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		entries := *log.entries
		require.Len(t, entries, 1)
		assert.Equal(t, "error", entries[0].level)
		assert.NotEmpty(t, log.field(entries[0], "request_id"))
		assert.Equal(t, http.StatusServiceUnavailable, log.field(entries[0], "status"))
	})
}
