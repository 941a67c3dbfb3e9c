// Package qdrant is a minimal REST client for a Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

// pointNamespace seeds the deterministic point ids so rewriting a chunk targets the same point.
var pointNamespace = uuid.MustParse("5b6f0f5e-55a4-4c53-9a8e-1f3c6d2b7a10")

// Storage assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

var _ vectorstore.Store = (*Storage)(nil)

type Config struct {
	URL        string        `yaml:"url" env:"URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "documents"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID is the Qdrant point id for a chunk position.
func PointID(documentID string, index int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s:%d", documentID, index)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": "document_id", "field_schema": "keyword"}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil)
	return err
}

// ReplaceDocument deletes the document's points and upserts the new ones in a single batch request.
func (s *Storage) ReplaceDocument(
	ctx context.Context,
	documentID string,
	chunks []domain.Chunk,
	vectors [][]float32,
) error {
	if err := vectorstore.CheckBatch(documentID, chunks, vectors, s.dimension); err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		c := chunks[i]
		c.DocumentID = documentID
		points[i] = map[string]any{
			"id":     PointID(documentID, c.Index),
			"vector": vectors[i],
			"payload": map[string]any{
				"document_id": documentID,
				"chunk_index": c.Index,
				"chunk":       c,
			},
		}
	}
	ops := []map[string]any{{"delete": map[string]any{"filter": documentFilter(documentID)}}}
	if len(points) > 0 {
		ops = append(ops, map[string]any{"upsert": map[string]any{"points": points}})
	}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/batch?wait=true"), map[string]any{"operations": ops}, nil)
	return err
}

func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": documentFilter(documentID)}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vector), s.dimension)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        vectorstore.EffectiveTopK(topK),
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Chunk domain.Chunk `json:"chunk"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: r.Payload.Chunk, Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func documentFilter(documentID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{{"key": "document_id", "match": map[string]any{"value": documentID}}},
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil. The returned status
// is zero when the request never reached the server.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode qdrant request: %v", domain.ErrStorage, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s: %v", domain.ErrStorage, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s: %s",
			domain.ErrStorage, method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode qdrant response: %v", domain.ErrStorage, err)
		}
	}
	return resp.StatusCode, nil
}
