package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/vectorstore"
)

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Query searches the vector store and falls back to lexical ranking over the chunks ingested in
// this process when the embedding carries no signal (e.g. TF-IDF with no known terms).
func (s *RAGServiceImpl) Query(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if p, ok := preparerOf(s.embedder); ok && !p.Prepared() {
		return s.lexicalSearch(query, topK), nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return s.lexicalSearch(query, topK), nil
	}
	res, err := s.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return s.lexicalSearch(query, topK), nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func (s *RAGServiceImpl) lexicalSearch(query string, topK int) []domain.SearchResult {
	chunks := s.allChunks()
	qset := toTokenSet(query)
	scores := make([]domain.SearchResult, len(chunks))
	for i, ch := range chunks {
		scores[i] = domain.SearchResult{Chunk: ch, Score: overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores[:min(len(scores), vectorstore.EffectiveTopK(topK))]
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct lowercase words.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := toTokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
