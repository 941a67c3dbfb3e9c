// Package app assembles the configured collaborators into a RAG service.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/cpretzinger/idudesRAG/internal/changedetect"
	"github.com/cpretzinger/idudesRAG/internal/config"
	"github.com/cpretzinger/idudesRAG/internal/embedding"
	"github.com/cpretzinger/idudesRAG/internal/embedding/openai"
	"github.com/cpretzinger/idudesRAG/internal/embedding/tfidf"
	"github.com/cpretzinger/idudesRAG/internal/enrich"
	"github.com/cpretzinger/idudesRAG/internal/ingest"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/service"
	"github.com/cpretzinger/idudesRAG/internal/summarizer"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/chromemstore"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/memory"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/postgres"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore/qdrant"
)

// App owns the service and everything that has to be closed with it.
type App struct {
	Service *service.RAGServiceImpl
	Config  *config.AppConfig
	Logger  logger.Logger

	closers []func() error
}

func NewLogger(cfg config.LogConfig) logger.Logger {
	lc := logger.DefaultConfig()
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	lc.JSON = cfg.JSON
	log := logger.NewLogger(lc)
	logger.SetDefault(log)
	return log
}

// NewPipeline builds the document pipeline with the configured token encoding.
func NewPipeline(cfg *config.AppConfig, log logger.Logger) (*pipeline.Pipeline, error) {
	return pipeline.New(cfg.Pipeline,
		pipeline.WithLogger(log),
		pipeline.WithTokenCounter(tokenCounter(cfg.Pipeline.TokenEncoding, log)),
	)
}

// tokenCounter prefers tiktoken and falls back to the character estimate when the encoding
// cannot be loaded, e.g. offline.
func tokenCounter(encoding string, log logger.Logger) enrich.TokenCounter {
	if encoding == "" || encoding == "estimate" {
		return enrich.EstimateCounter{}
	}
	tc, err := enrich.NewTiktokenCounter(encoding)
	if err != nil {
		log.Warn("Token encoding unavailable, estimating token counts", "encoding", encoding, "error", err)
		return enrich.EstimateCounter{}
	}
	return tc
}

func New(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}
	p, err := NewPipeline(cfg, log)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Embedder.Cache == "redis" || cfg.ChangeDetect.Type == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.closers = append(a.closers, rdb.Close)
	}

	emb, err := a.embedder(rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := a.store(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	in, err := ingest.New(emb, store, cfg.Ingest, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var changes *changedetect.Detector
	switch cfg.ChangeDetect.Type {
	case "memory":
		changes = changedetect.New(changedetect.NewMemoryTracker())
	case "redis":
		changes = changedetect.New(changedetect.NewRedisTracker(rdb, cfg.ChangeDetect.HashKey))
	}

	svc, err := service.NewRAGService(service.Deps{
		Pipeline:   p,
		Embedder:   emb,
		Store:      store,
		Ingester:   in,
		Changes:    changes,
		Summarizer: summarizer.NewFrequencySummarizer(),
		Logger:     log,
	}, cfg.Summarizer.MaxSentences)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) embedder(rdb *redis.Client) (embedding.Embedder, error) {
	cfg := a.Config.Embedder
	var emb embedding.Embedder
	switch cfg.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		client, err := openai.NewClient(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	switch cfg.Cache {
	case "lru":
		cache, err := embedding.NewLRUCache(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return embedding.NewCached(emb, cache), nil
	case "redis":
		return embedding.NewCached(emb, embedding.NewRedisCache(rdb, "", 0, a.Logger)), nil
	}
	return emb, nil
}

func (a *App) store(ctx context.Context) (vectorstore.Store, error) {
	cfg := a.Config.VectorStore
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		return qdrant.NewStorage(cfg.Qdrant), nil
	case "postgres":
		return postgres.Open(ctx, cfg.Postgres)
	case "chromem":
		return chromemstore.NewStorage(cfg.Chromem)
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

// Fatal logs err and exits.
func Fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
