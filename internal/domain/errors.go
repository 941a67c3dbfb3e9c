package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInput covers empty content and content below the usable floor.
	ErrInput = errors.New("unusable input")
	// ErrOversize is returned before any processing when content exceeds the size ceiling.
	ErrOversize = errors.New("input exceeds maximum size")
	// ErrEmbedding means a batch exhausted its retry budget.
	ErrEmbedding = errors.New("embedding failed")
	// ErrCountMismatch means the embedder returned a different number of vectors than texts submitted.
	ErrCountMismatch = errors.New("embedding count mismatch")
	ErrStorage       = errors.New("storage failed")
	ErrConfig        = errors.New("invalid configuration")
)

type Stage string

const (
	StageValidate  Stage = "validate"
	StageNormalize Stage = "normalize"
	StageSegment   Stage = "segment"
	StageEmbed     Stage = "embed"
	StagePersist   Stage = "persist"
)

// StageError reports which stage of an ingestion failed and for which document.
type StageError struct {
	Stage      Stage
	DocumentID string
	Err        error
}

func (e *StageError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s document %s: %v", e.Stage, e.DocumentID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether re-submitting the same document may succeed.
// Embedding and storage failures are transient, input and configuration problems are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrCountMismatch) {
		return false
	}
	return errors.Is(err, ErrEmbedding) || errors.Is(err, ErrStorage)
}

// StageOf returns the failed stage, or "" when err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
