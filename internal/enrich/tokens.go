package enrich

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used when none is configured.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts model tokens in a chunk.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// TiktokenCounter counts tokens with a BPE encoding. The encoding tables are fetched on first use.
// The encoder is fixed at construction, so a counter is safe to share between goroutines.
type TiktokenCounter struct {
	encodingName string
	tke          *tiktoken.Tiktoken
}

// NewTiktokenCounter accepts an encoding name or a model name.
func NewTiktokenCounter(modelOrEncoding string) (*TiktokenCounter, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load encoding %q: %w", modelOrEncoding, err)
		}
	}
	return &TiktokenCounter{encodingName: modelOrEncoding, tke: tke}, nil
}

func (tc *TiktokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	if tc.tke == nil {
		return 0, fmt.Errorf("tiktoken encoder is not initialized for encoding %s", tc.encodingName)
	}
	return len(tc.tke.Encode(text, nil, nil)), nil
}

func (tc *TiktokenCounter) Encoding() string {
	return tc.encodingName
}

// EstimateCounter approximates tokens as one per four runes.
type EstimateCounter struct{}

func (EstimateCounter) CountTokens(_ context.Context, text string) (int, error) {
	return EstimateTokens(text), nil
}

func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
