// Package chromemstore keeps chunk vectors in an embedded chromem-go collection, optionally persisted to disk.
package chromemstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

const (
	metaDocumentID = "document_id"
	metaChunkIndex = "chunk_index"
	metaChunk      = "chunk"
)

type Config struct {
	// Path enables gob persistence under the directory. Empty keeps everything in memory.
	Path       string `yaml:"path" env:"PATH"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

type Storage struct {
	db         *chromem.DB
	name       string
	collection *chromem.Collection
	dimension  int
}

var _ vectorstore.Store = (*Storage)(nil)

func NewStorage(cfg Config) (*Storage, error) {
	db := chromem.NewDB()
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: open chromem db: %v", domain.ErrStorage, err)
		}
	}
	name := cfg.Collection
	if name == "" {
		name = "documents"
	}
	return &Storage{db: db, name: name}, nil
}

func docID(documentID string, index int) string {
	return documentID + "#" + strconv.Itoa(index)
}

// noEmbedding guards the collection: vectors always arrive precomputed.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store only accepts precomputed embeddings")
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	c, err := s.db.GetOrCreateCollection(s.name, map[string]string{"dimension": strconv.Itoa(dimension)}, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: open collection: %v", domain.ErrStorage, err)
	}
	s.collection = c
	return nil
}

// ReplaceDocument overwrites the chunk positions in place, then drops positions past the new tail.
func (s *Storage) ReplaceDocument(
	ctx context.Context,
	documentID string,
	chunks []domain.Chunk,
	vectors [][]float32,
) error {
	if s.collection == nil {
		return fmt.Errorf("%w: store not initialized", domain.ErrStorage)
	}
	if err := vectorstore.CheckBatch(documentID, chunks, vectors, s.dimension); err != nil {
		return err
	}
	docs := make([]chromem.Document, len(chunks))
	for i := range chunks {
		c := chunks[i]
		c.DocumentID = documentID
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("%w: marshal chunk %d: %v", domain.ErrStorage, i, err)
		}
		docs[i] = chromem.Document{
			ID:        docID(documentID, c.Index),
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				metaDocumentID: documentID,
				metaChunkIndex: strconv.Itoa(c.Index),
				metaChunk:      string(raw),
			},
		}
	}
	if len(docs) > 0 {
		if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("%w: add documents: %v", domain.ErrStorage, err)
		}
	}
	var stale []string
	for i := len(chunks); ; i++ {
		id := docID(documentID, i)
		if _, err := s.collection.GetByID(ctx, id); err != nil {
			break
		}
		stale = append(stale, id)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, stale...); err != nil {
		return fmt.Errorf("%w: delete stale chunks: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	if s.collection == nil {
		return nil
	}
	if err := s.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("%w: delete document: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if s.collection == nil {
		return nil, nil
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vector), s.dimension)
	}
	n := min(vectorstore.EffectiveTopK(topK), s.collection.Count())
	if n == 0 {
		return nil, nil
	}
	found, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrStorage, err)
	}
	results := make([]domain.SearchResult, 0, len(found))
	for _, r := range found {
		var c domain.Chunk
		if err := json.Unmarshal([]byte(r.Metadata[metaChunk]), &c); err != nil {
			return nil, fmt.Errorf("%w: decode chunk %s: %v", domain.ErrStorage, r.ID, err)
		}
		results = append(results, domain.SearchResult{Chunk: c, Score: float64(r.Similarity)})
	}
	return results, nil
}

func (s *Storage) Close() error { return nil }
