// Package summarizer produces an extractive summary of ingested chunks.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

var (
	tokenRe    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]+`)
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered), weighted by the
// importance score of the chunk each sentence came from.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords()}
}

type sentence struct {
	text   string
	weight float64
	tokens []string
}

// Summarize picks up to maxSentences sentences and returns them in document order.
// Sentences repeated through chunk overlap are counted once.
func (s *FrequencySummarizer) Summarize(chunks []domain.Chunk, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var (
		sentences []sentence
		seen      = make(map[string]struct{})
	)
	for _, c := range chunks {
		weight := 1.0
		if c.ImportanceScore > 0 {
			weight = c.ImportanceScore / 5
		}
		found := sentenceRe.FindAllString(c.Text, -1)
		if len(found) == 0 && strings.TrimSpace(c.Text) != "" {
			found = []string{c.Text}
		}
		for _, raw := range found {
			text := strings.TrimSpace(raw)
			if _, dup := seen[text]; dup || text == "" {
				continue
			}
			seen[text] = struct{}{}
			sentences = append(sentences, sentence{text: text, weight: weight, tokens: s.tokens(text)})
		}
	}
	if len(sentences) == 0 {
		return ""
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range sent.tokens {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		score := 0.0
		for _, tok := range sent.tokens {
			score += freq[tok] / maxF
		}
		if l := float64(len(sent.tokens)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score * sent.weight}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := range n {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx].text
	}
	return strings.Join(out, " ")
}

func (s *FrequencySummarizer) tokens(text string) []string {
	all := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, tok := range all {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "you", "we", "they", "he", "she", "my", "your", "our", "their", "do", "does", "did", "have", "has", "had", "not", "no", "yes", "what", "which", "who", "how", "all", "any", "there", "here",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
