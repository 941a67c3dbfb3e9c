// Package httpapi exposes ingestion, chunk preview and search over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/service"
)

// Service is the part of the RAG service the HTTP surface drives.
type Service interface {
	IngestDocument(ctx context.Context, doc domain.RawDocument) (*service.DocumentReport, error)
	Preview(ctx context.Context, doc domain.RawDocument) (*pipeline.Result, error)
	Query(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

type Handler struct {
	svc     Service
	log     logger.Logger
	maxBody int64
}

// NewRouter builds the chi router. maxBody bounds request bodies; the pipeline enforces its
// own content ceiling on top of it.
func NewRouter(svc Service, log logger.Logger, maxBody int64) http.Handler {
	if log == nil {
		log = logger.NewForTests()
	}
	h := &Handler{svc: svc, log: log, maxBody: maxBody}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", h.handleIngest)
		r.Delete("/documents/{document_id}", h.handleDelete)
		r.Post("/chunks/preview", h.handlePreview)
		r.Get("/search", h.handleSearch)
	})
	return r
}

// requestLogger puts a logger tagged with the request id into the request context, so the
// service and the error path log under the same id.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.log.With("request_id", middleware.GetReqID(r.Context()), "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), log)))
	})
}

type errorResponse struct {
	Error     string       `json:"error"`
	Stage     domain.Stage `json:"stage,omitempty"`
	Retryable bool         `json:"retryable"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.IngestDocument(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if rep.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, rep)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Preview(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}
	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top_k must be between 0 and 100"})
			return
		}
		topK = n
	}
	results, err := h.svc.Query(r.Context(), q, topK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: results})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "document_id")
	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeDocument reads a RawDocument body and assigns an id when the caller sent none.
func (h *Handler) decodeDocument(w http.ResponseWriter, r *http.Request) (domain.RawDocument, bool) {
	var doc domain.RawDocument
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: domain.ErrOversize.Error()})
			return doc, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return doc, false
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	return doc, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Stage:     domain.StageOf(err),
		Retryable: domain.Retryable(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOversize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCountMismatch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEmbedding), errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
