package pipeline

import (
	"fmt"

	"github.com/cpretzinger/idudesRAG/internal/detect"
	"github.com/cpretzinger/idudesRAG/internal/domain"
)

const (
	DefaultTargetSize       = 900
	DefaultOverlap          = 150
	DefaultMinContentLength = 50
	DefaultMaxContentBytes  = 100 << 20
)

// Config is the complete, explicit configuration of one pipeline. Nothing is read from the
// environment here; the config package does that and hands over a filled value.
type Config struct {
	TargetSize       int                   `yaml:"target_size" env:"TARGET_SIZE"`
	Overlap          int                   `yaml:"overlap" env:"OVERLAP"`
	MinContentLength int                   `yaml:"min_content_length" env:"MIN_CONTENT_LENGTH"`
	MaxContentBytes  int                   `yaml:"max_content_bytes" env:"MAX_CONTENT_BYTES"`
	TokenEncoding    string                `yaml:"token_encoding" env:"TOKEN_ENCODING"`
	Cleaning         domain.CleaningConfig `yaml:"cleaning" envPrefix:"CLEAN_"`
	Weights          detect.Weights        `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{
		TargetSize:       DefaultTargetSize,
		Overlap:          DefaultOverlap,
		MinContentLength: DefaultMinContentLength,
		MaxContentBytes:  DefaultMaxContentBytes,
		Cleaning:         domain.DefaultCleaningConfig(),
		Weights:          detect.DefaultWeights(),
	}
}

// Validate rejects limits the segmenter cannot honor.
func (c Config) Validate() error {
	switch {
	case c.TargetSize <= 0:
		return fmt.Errorf("%w: target_size must be positive, got %d", domain.ErrConfig, c.TargetSize)
	case c.Overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfig, c.Overlap)
	case c.Overlap >= c.TargetSize:
		return fmt.Errorf("%w: overlap %d must be smaller than target_size %d", domain.ErrConfig, c.Overlap, c.TargetSize)
	case c.MinContentLength < 0:
		return fmt.Errorf("%w: min_content_length must not be negative", domain.ErrConfig)
	case c.MaxContentBytes <= 0:
		return fmt.Errorf("%w: max_content_bytes must be positive", domain.ErrConfig)
	case c.Cleaning.MinConfidenceScore < 0 || c.Cleaning.MinConfidenceScore > 1:
		return fmt.Errorf("%w: min_confidence_score must be within [0,1], got %v",
			domain.ErrConfig, c.Cleaning.MinConfidenceScore)
	}
	return nil
}
