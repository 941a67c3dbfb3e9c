// Package ingest embeds a document's chunks in batches and persists them in a single write.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/embedding"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

type Config struct {
	BatchSize   int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
	BatchDelay  time.Duration `yaml:"batch_delay" env:"BATCH_DELAY"`
	MaxRetries  uint64        `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBase   time.Duration `yaml:"retry_base" env:"RETRY_BASE"`
	// Dimension, when set, is enforced on every vector. Zero trusts the first vector.
	Dimension int `yaml:"dimension" env:"DIMENSION"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		Concurrency: 4,
		BatchDelay:  100 * time.Millisecond,
		MaxRetries:  3,
		RetryBase:   2 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", domain.ErrConfig)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", domain.ErrConfig)
	case c.BatchDelay < 0 || c.RetryBase < 0:
		return fmt.Errorf("%w: delays must not be negative", domain.ErrConfig)
	case c.Dimension < 0:
		return fmt.Errorf("%w: dimension must not be negative", domain.ErrConfig)
	}
	return nil
}

// Report describes a successful ingestion.
type Report struct {
	DocumentID string        `json:"document_id"`
	Chunks     int           `json:"chunks"`
	Batches    int           `json:"batches"`
	Attempts   int           `json:"attempts"`
	Dimension  int           `json:"dimension"`
	Duration   time.Duration `json:"duration"`
}

type Ingester struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	cfg      Config
	log      logger.Logger

	mu       sync.Mutex
	storeDim int
}

// New builds an Ingester over embedder and store. Both are required, and cfg must validate.
// A nil log falls back to a test logger.
func New(embedder embedding.Embedder, store vectorstore.Store, cfg Config, log logger.Logger) (*Ingester, error) {
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: embedder and store are required", domain.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewForTests()
	}
	return &Ingester{embedder: embedder, store: store, cfg: cfg, log: log}, nil
}

// Ingest embeds every chunk and replaces the document's stored chunks. Nothing is written
// unless every batch succeeded.
func (in *Ingester) Ingest(ctx context.Context, documentID string, chunks []domain.Chunk) (*Report, error) {
	start := time.Now()
	report := &Report{DocumentID: documentID, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}
	log := in.log.With("document_id", documentID)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	size := in.cfg.BatchSize
	batches := (len(texts) + size - 1) / size
	report.Batches = batches
	results := make([][][]float32, batches)
	var attempts atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for b := range batches {
		if b > 0 && in.cfg.BatchDelay > 0 {
			if err := sleep(gctx, in.cfg.BatchDelay); err != nil {
				break
			}
		}
		lo, hi := b*size, min((b+1)*size, len(texts))
		g.Go(func() error {
			vectors, n, err := in.embedBatch(gctx, texts[lo:hi])
			attempts.Add(int64(n))
			if err != nil {
				log.Warn("embedding batch failed", "batch", b, "attempts", n, "error", err)
				return fmt.Errorf("batch %d: %w", b, err)
			}
			results[b] = vectors
			return nil
		})
	}
	err := g.Wait()
	report.Attempts = int(attempts.Load())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if !errors.Is(err, domain.ErrCountMismatch) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		}
		return nil, &domain.StageError{Stage: domain.StageEmbed, DocumentID: documentID, Err: err}
	}

	vectors := make([][]float32, 0, len(chunks))
	for _, batch := range results {
		vectors = append(vectors, batch...)
	}
	dim, err := in.checkDimensions(vectors)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageEmbed, DocumentID: documentID, Err: err}
	}
	report.Dimension = dim

	if err := in.persist(ctx, documentID, chunks, vectors, dim); err != nil {
		return nil, &domain.StageError{Stage: domain.StagePersist, DocumentID: documentID, Err: err}
	}
	report.Duration = time.Since(start)
	log.Info("document ingested", "chunks", len(chunks), "batches", batches, "attempts", report.Attempts)
	return report, nil
}

// embedBatch retries transient failures with exponential backoff. Count mismatches and
// configuration errors stop immediately.
func (in *Ingester) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	backoff := retry.WithMaxRetries(in.cfg.MaxRetries, retry.NewExponential(max(in.cfg.RetryBase, time.Nanosecond)))
	var (
		out   [][]float32
		calls int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		calls++
		vectors, err := in.embedder.EmbedDocuments(ctx, texts)
		switch {
		case errors.Is(err, domain.ErrCountMismatch), errors.Is(err, domain.ErrConfig):
			return err
		case err != nil:
			return retry.RetryableError(err)
		case len(vectors) != len(texts):
			return fmt.Errorf("%w: submitted %d texts, received %d vectors", domain.ErrCountMismatch, len(texts), len(vectors))
		}
		out = vectors
		return nil
	})
	return out, calls, err
}

func (in *Ingester) checkDimensions(vectors [][]float32) (int, error) {
	want := in.cfg.Dimension
	if want == 0 {
		want = len(vectors[0])
	}
	if want == 0 {
		return 0, fmt.Errorf("%w: embedder returned empty vectors", domain.ErrEmbedding)
	}
	for i, v := range vectors {
		if len(v) != want {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrEmbedding, i, len(v), want)
		}
	}
	return want, nil
}

func (in *Ingester) persist(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32, dim int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	in.mu.Lock()
	if in.storeDim == 0 {
		if err := in.store.Init(ctx, dim); err != nil {
			in.mu.Unlock()
			return wrapStorage(err)
		}
		in.storeDim = dim
	}
	in.mu.Unlock()
	return wrapStorage(in.store.ReplaceDocument(ctx, documentID, chunks, vectors))
}

func wrapStorage(err error) error {
	if err == nil || errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrCountMismatch) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
