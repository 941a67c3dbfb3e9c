// Package tfidf is a local embedder for running without a model service.
package tfidf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Embedder is a TF-IDF vectorizer over a vocabulary fitted once with Prepare. Term frequency is
// sublinear (1 + ln tf) so long transcript chunks that repeat a word are not dominated by it.
type Embedder struct {
	mu          sync.RWMutex
	vocabulary  map[string]int
	idf         []float32
	prepared    bool
	fingerprint string
	stopwords   map[string]struct{}
}

func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		stopwords:  defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return "tfidf" }

// Model names the fitted model. Vectors from different fits are not comparable, so each
// fit gets its own name and embedding caches never mix them.
func (e *Embedder) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.fingerprint == "" {
		return "tfidf"
	}
	return "tfidf-" + e.fingerprint
}

func (e *Embedder) Prepared() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prepared
}

// Prepare fits the vocabulary and smoothed IDF weights to the corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		for tok := range e.termCounts(text) {
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	terms := slices.Sorted(maps.Keys(df))
	n := float64(len(corpus))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float32, len(terms))
	h := sha256.New()
	for i, term := range terms {
		e.vocabulary[term] = i
		e.idf[i] = float32(math.Log((1+n)/(1+float64(df[term]))) + 1)
		fmt.Fprintf(h, "%s\x00%g\x00", term, e.idf[i])
	}
	e.fingerprint = hex.EncodeToString(h.Sum(nil))[:16]
	e.prepared = true
	return nil
}

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EmbedQuery returns the L2-normalized vector for text. Terms outside the vocabulary are
// ignored, so text with no known terms yields the zero vector.
func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	vec := make([]float32, len(e.idf))
	var sumSq float64
	for tok, count := range e.termCounts(text) {
		idx, ok := e.vocabulary[tok]
		if !ok {
			continue
		}
		w := (1 + math.Log(float64(count))) * float64(e.idf[idx])
		vec[idx] = float32(w)
		sumSq += w * w
	}
	if sumSq == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// termCounts lowercases, tokenizes and drops stopwords.
func (e *Embedder) termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopwords[tok]; !stop {
			counts[tok]++
		}
	}
	return counts
}

func defaultStopwords() map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(`a an the and or but if then else for to of in on at by with as is are was
		were be been being it this that these those from up down over under again further than so such into
		about between through during before after above below out off own same too very can will just don
		should now`) {
		m[w] = struct{}{}
	}
	return m
}
