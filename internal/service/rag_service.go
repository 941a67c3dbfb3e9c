// Package service wires the document pipeline, ingestion and search into one application service.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cpretzinger/idudesRAG/internal/changedetect"
	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/embedding"
	"github.com/cpretzinger/idudesRAG/internal/ingest"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/summarizer"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

// fileNamespace derives stable document ids from file paths.
var fileNamespace = uuid.MustParse("0f8e4a52-2b9d-4c4e-8d53-7b1c9f3e6a21")

var supportedExtensions = []string{".txt", ".md", ".markdown", ".html", ".htm", ".eml", ".vtt", ".srt"}

// DocumentReport is the outcome of ingesting one document.
type DocumentReport struct {
	DocumentID string         `json:"document_id"`
	Path       string         `json:"path,omitempty"`
	Format     domain.Format  `json:"format,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Chunks     int            `json:"chunks"`
	Fallback   bool           `json:"fallback,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	Ingest     *ingest.Report `json:"ingest,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type IngestSummary struct {
	Documents []DocumentReport `json:"documents"`
	Summary   string           `json:"summary"`
}

type Deps struct {
	Pipeline   *pipeline.Pipeline
	Embedder   embedding.Embedder
	Store      vectorstore.Store
	Ingester   *ingest.Ingester
	Changes    *changedetect.Detector
	Summarizer *summarizer.FrequencySummarizer
	Logger     logger.Logger
}

type RAGServiceImpl struct {
	pipeline            *pipeline.Pipeline
	embedder            embedding.Embedder
	store               vectorstore.Store
	ingester            *ingest.Ingester
	changes             *changedetect.Detector
	summarizer          *summarizer.FrequencySummarizer
	summaryMaxSentences int
	log                 logger.Logger

	mu     sync.RWMutex
	chunks map[string][]domain.Chunk
	order  []string
}

func NewRAGService(deps Deps, summaryMaxSentences int) (*RAGServiceImpl, error) {
	if deps.Pipeline == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: pipeline, embedder and store are required", domain.ErrConfig)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewForTests()
	}
	if deps.Ingester == nil {
		in, err := ingest.New(deps.Embedder, deps.Store, ingest.DefaultConfig(), deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Ingester = in
	}
	if deps.Summarizer == nil {
		deps.Summarizer = summarizer.NewFrequencySummarizer()
	}
	return &RAGServiceImpl{
		pipeline:            deps.Pipeline,
		embedder:            deps.Embedder,
		store:               deps.Store,
		ingester:            deps.Ingester,
		changes:             deps.Changes,
		summarizer:          deps.Summarizer,
		summaryMaxSentences: summaryMaxSentences,
		log:                 deps.Logger,
		chunks:              make(map[string][]domain.Chunk),
	}, nil
}

// DocumentIDForPath returns the id used for a file, stable across runs.
func DocumentIDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(fileNamespace, []byte(path)).String()
}

// ReadDocuments expands globs and loads every supported file as a raw document.
func ReadDocuments(paths []string, contentType string) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", domain.ErrInput, p, err)
		}
		if matches == nil && !hasGlobMeta(p) {
			matches = []string{p}
		}
		for _, m := range matches {
			if !slices.Contains(supportedExtensions, strings.ToLower(filepath.Ext(m))) {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrInput, err)
			}
			docs = append(docs, domain.RawDocument{
				ID:          DocumentIDForPath(m),
				Content:     string(data),
				ContentType: contentType,
				Source:      m,
			})
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no supported documents found (%s)", domain.ErrInput, strings.Join(supportedExtensions, ", "))
	}
	return docs, nil
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// IngestDocuments ingests every document and keeps going past individual failures.
// The returned error joins the failures.
func (s *RAGServiceImpl) IngestDocuments(ctx context.Context, docs []domain.RawDocument) (*IngestSummary, error) {
	results := make([]*pipeline.Result, len(docs))
	out := &IngestSummary{Documents: make([]DocumentReport, len(docs))}
	var errs []error
	fail := func(i int, err error) {
		out.Documents[i].Error = err.Error()
		errs = append(errs, err)
	}

	for i, doc := range docs {
		out.Documents[i] = DocumentReport{DocumentID: doc.ID, Path: doc.Source}
		if s.unchanged(ctx, doc) {
			out.Documents[i].Skipped = true
			continue
		}
		res, err := s.pipeline.Process(ctx, doc)
		if err != nil {
			fail(i, err)
			continue
		}
		results[i] = res
	}

	if err := s.prepare(results); err != nil {
		return out, errors.Join(append(errs, err)...)
	}

	for i, res := range results {
		if res == nil {
			continue
		}
		rep, err := s.persist(ctx, docs[i], res)
		out.Documents[i] = *rep
		if err != nil {
			fail(i, err)
		}
	}
	out.Summary = s.Summary()
	return out, errors.Join(errs...)
}

// IngestDocument runs one document end to end.
func (s *RAGServiceImpl) IngestDocument(ctx context.Context, doc domain.RawDocument) (*DocumentReport, error) {
	if s.unchanged(ctx, doc) {
		return &DocumentReport{DocumentID: doc.ID, Path: doc.Source, Skipped: true}, nil
	}
	res, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return &DocumentReport{DocumentID: doc.ID, Path: doc.Source, Error: err.Error()}, err
	}
	if err := s.prepare([]*pipeline.Result{res}); err != nil {
		return &DocumentReport{DocumentID: doc.ID, Path: doc.Source, Error: err.Error()}, err
	}
	return s.persist(ctx, doc, res)
}

// Preview runs the pipeline without embedding or persisting anything.
func (s *RAGServiceImpl) Preview(ctx context.Context, doc domain.RawDocument) (*pipeline.Result, error) {
	return s.pipeline.Process(ctx, doc)
}

// DeleteDocument removes a document from the store, the lexical index and the change tracker.
func (s *RAGServiceImpl) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.chunks, documentID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == documentID })
	s.mu.Unlock()
	if s.changes != nil {
		return s.changes.Forget(ctx, documentID)
	}
	return nil
}

func (s *RAGServiceImpl) persist(ctx context.Context, doc domain.RawDocument, res *pipeline.Result) (*DocumentReport, error) {
	rep := &DocumentReport{
		DocumentID: doc.ID,
		Path:       doc.Source,
		Format:     res.Detection.LikelyFormat,
		Confidence: res.Detection.Confidence,
		Chunks:     len(res.Chunks),
		Fallback:   res.Fallback,
	}
	ingRep, err := s.ingester.Ingest(ctx, doc.ID, res.Chunks)
	if err != nil {
		rep.Error = err.Error()
		return rep, err
	}
	rep.Ingest = ingRep

	s.mu.Lock()
	if _, ok := s.chunks[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.chunks[doc.ID] = res.Chunks
	s.mu.Unlock()

	if s.changes != nil {
		if err := s.changes.Commit(ctx, doc.ID, changedetect.Hash(doc.Content)); err != nil {
			s.logFor(ctx).Warn("Failed to record document hash", "document_id", doc.ID, "error", err)
		}
	}
	s.logFor(ctx).Info("Document stored", "document_id", doc.ID, "format", rep.Format, "chunks", rep.Chunks)
	return rep, nil
}

// unchanged reports whether the document was already ingested with identical content. Tracker
// failures count as changed.
func (s *RAGServiceImpl) unchanged(ctx context.Context, doc domain.RawDocument) bool {
	if s.changes == nil {
		return false
	}
	changed, _, err := s.changes.Changed(ctx, doc.ID, doc.Content)
	if err != nil {
		s.logFor(ctx).Warn("Change detection unavailable", "document_id", doc.ID, "error", err)
		return false
	}
	if !changed {
		s.logFor(ctx).Debug("Document unchanged, skipping", "document_id", doc.ID)
	}
	return !changed
}

// logFor prefers the logger carried by ctx, e.g. one tagged with an HTTP request id.
func (s *RAGServiceImpl) logFor(ctx context.Context) logger.Logger {
	if l, ok := ctx.Value(logger.LoggerCtxKey).(logger.Logger); ok && l != nil {
		return l
	}
	return s.log
}

// prepare fits corpus-dependent embedders once, on the first corpus they see.
func (s *RAGServiceImpl) prepare(results []*pipeline.Result) error {
	p, ok := preparerOf(s.embedder)
	if !ok || p.Prepared() {
		return nil
	}
	var corpus []string
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, c := range res.Chunks {
			corpus = append(corpus, c.Text)
		}
	}
	if len(corpus) == 0 {
		return nil
	}
	if err := p.Prepare(corpus); err != nil {
		return &domain.StageError{Stage: domain.StageEmbed, Err: fmt.Errorf("%w: prepare: %w", domain.ErrEmbedding, err)}
	}
	return nil
}

func preparerOf(e embedding.Embedder) (embedding.Preparer, bool) {
	for e != nil {
		if p, ok := e.(embedding.Preparer); ok {
			return p, true
		}
		u, ok := e.(interface{ Unwrap() embedding.Embedder })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return nil, false
}

// Summary summarizes every chunk ingested in this process.
func (s *RAGServiceImpl) Summary() string {
	return s.summarizer.Summarize(s.allChunks(), s.summaryMaxSentences)
}

func (s *RAGServiceImpl) allChunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chunk
	for _, id := range s.order {
		out = append(out, s.chunks[id]...)
	}
	return out
}
