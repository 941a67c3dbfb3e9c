// Package postgres stores chunk vectors in a pgvector table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

const DefaultTable = "document_embeddings"

// DB is the subset of a pgx pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Config struct {
	DSN       string `yaml:"dsn" env:"DSN"`
	Table     string `yaml:"table" env:"TABLE"`
	EnsureIdx bool   `yaml:"ensure_index" env:"ENSURE_INDEX"`
}

type Storage struct {
	db         DB
	closeFn    func()
	table      string
	tableIdent string
	ensureIdx  bool
	dimension  int
}

var _ vectorstore.Store = (*Storage)(nil)

// Open connects a pool for cfg.DSN.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to postgres: %v", domain.ErrStorage, err)
	}
	s := New(pool, cfg)
	s.closeFn = pool.Close
	return s, nil
}

// New wraps an existing connection.
func New(db DB, cfg Config) *Storage {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &Storage{
		db:         db,
		table:      table,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		ensureIdx:  cfg.EnsureIdx,
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: enable extension: %v", domain.ErrStorage, err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (document_id, chunk_index)
	)`, s.tableIdent, dimension)
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: create table: %v", domain.ErrStorage, err)
	}
	if s.ensureIdx {
		index := pgx.Identifier{s.table + "_embedding_idx"}.Sanitize()
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)", index, s.tableIdent)
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create index: %v", domain.ErrStorage, err)
		}
	}
	return nil
}

// ReplaceDocument writes all chunks of a document in one transaction: rows past the new chunk
// count are deleted and the rest are upserted on (document_id, chunk_index).
func (s *Storage) ReplaceDocument(
	ctx context.Context,
	documentID string,
	chunks []domain.Chunk,
	vectors [][]float32,
) (err error) {
	if err := vectorstore.CheckBatch(documentID, chunks, vectors, s.dimension); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w; rollback failed: %v", err, rbErr)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("%w: commit: %v", domain.ErrStorage, commitErr)
		}
	}()

	deleteStale := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1 AND chunk_index >= $2", s.tableIdent)
	if _, err := tx.Exec(ctx, deleteStale, documentID, len(chunks)); err != nil {
		return fmt.Errorf("%w: delete stale chunks: %v", domain.ErrStorage, err)
	}
	upsert := fmt.Sprintf(`INSERT INTO %s (document_id, chunk_index, chunk, embedding, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (document_id, chunk_index) DO UPDATE SET
    chunk = excluded.chunk,
    embedding = excluded.embedding,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, s.tableIdent)
	now := time.Now().UTC()
	for i := range chunks {
		c := chunks[i]
		c.DocumentID = documentID
		meta, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("%w: marshal chunk %d: %v", domain.ErrStorage, i, err)
		}
		if _, err := tx.Exec(ctx, upsert, documentID, c.Index, c.Text, pgvector.NewVector(vectors[i]), meta, now); err != nil {
			return fmt.Errorf("%w: upsert chunk %d: %v", domain.ErrStorage, i, err)
		}
	}
	return nil
}

func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.tableIdent)
	if _, err := s.db.Exec(ctx, stmt, documentID); err != nil {
		return fmt.Errorf("%w: delete document: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vector), s.dimension)
	}
	topK = vectorstore.EffectiveTopK(topK)
	stmt := fmt.Sprintf(`SELECT metadata, 1 - (embedding <=> $1) AS score FROM %s
ORDER BY embedding <=> $1 ASC LIMIT $2`, s.tableIdent)
	rows, err := s.db.Query(ctx, stmt, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	results := make([]domain.SearchResult, 0, topK)
	for rows.Next() {
		var (
			raw   []byte
			score float64
		)
		if err := rows.Scan(&raw, &score); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStorage, err)
		}
		var c domain.Chunk
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: decode chunk: %v", domain.ErrStorage, err)
		}
		results = append(results, domain.SearchResult{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %v", domain.ErrStorage, err)
	}
	return results, nil
}

func (s *Storage) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
