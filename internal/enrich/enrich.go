// Package enrich turns raw chunk pieces into fully described chunks.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/cpretzinger/idudesRAG/internal/chunker"
	"github.com/cpretzinger/idudesRAG/internal/domain"
)

// Source describes the document the pieces came from.
type Source struct {
	DocumentID    string
	ContentType   string
	Steps         []string
	Fallback      bool
	LowConfidence bool
}

// Enricher computes per-chunk metadata. It is stateless apart from its token counter.
type Enricher struct {
	counter TokenCounter
}

// New returns an Enricher. A nil counter falls back to the rune based estimate.
func New(counter TokenCounter) *Enricher {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Enricher{counter: counter}
}

// Enrich describes each piece in order, then sets TotalChunks on every chunk once the
// final count is known.
func (e *Enricher) Enrich(
	ctx context.Context,
	pieces []chunker.Piece,
	det domain.DetectionResult,
	originalLength int,
	src Source,
) []domain.Chunk {
	contentType := src.ContentType
	sectionType := sectionFor(det.LikelyFormat)
	if p, ok := LookupProfile(src.ContentType); ok {
		contentType = p.ContentType
		sectionType = p.SectionType
	}
	if contentType == "" {
		contentType = string(det.LikelyFormat)
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		md := domain.ChunkMetadata{
			Format:         det.LikelyFormat,
			Confidence:     det.Confidence,
			StepsApplied:   slices.Clone(src.Steps),
			OriginalLength: originalLength,
			CleanedLength:  utf8.RuneCountInString(p.Text),
			StartOffset:    p.Start,
			EndOffset:      p.End,
			OverlapPrefix:  len(p.OverlapPrefix),
			Hash:           Hash(p.Text),
			TokenCount:     e.countTokens(ctx, p.Text),
			Fallback:       src.Fallback,
			LowConfidence:  src.LowConfidence,
		}
		md.ReductionPercent = reduction(md.CleanedLength, originalLength)
		if p.Episode > 0 {
			md.EpisodeID = fmt.Sprintf("episode_%d", p.Episode)
		}
		if det.LikelyFormat.IsTranscript() {
			md.SpeakerCount = len(speakerLabelRe.FindAllStringIndex(p.Body, -1))
			md.TimestampCount = len(timestampRe.FindAllStringIndex(p.Body, -1))
			describeTranscript(&md, ParseTranscript(p.Body))
		}

		chunks[i] = domain.Chunk{
			DocumentID:      src.DocumentID,
			Index:           i,
			Text:            p.Text,
			Size:            utf8.RuneCountInString(p.Body),
			OverlapSize:     utf8.RuneCountInString(p.OverlapPrefix),
			SectionType:     sectionType,
			ContentType:     contentType,
			ImportanceScore: Importance(p.Text, md.Speakers),
			Metadata:        md,
		}
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func (e *Enricher) countTokens(ctx context.Context, text string) int {
	n, err := e.counter.CountTokens(ctx, text)
	if err != nil {
		return EstimateTokens(text)
	}
	return n
}

// describeTranscript records distinct speakers in order of appearance and the time range.
func describeTranscript(md *domain.ChunkMetadata, lines []TranscriptLine) {
	if len(lines) == 0 {
		return
	}
	for _, l := range lines {
		if !slices.Contains(md.Speakers, l.Speaker) {
			md.Speakers = append(md.Speakers, l.Speaker)
		}
	}
	start, end := lines[0].Seconds, lines[len(lines)-1].Seconds
	md.TimestampStart = &start
	md.TimestampEnd = &end
}

func sectionFor(f domain.Format) string {
	switch f {
	case domain.FormatPodcastTranscript, domain.FormatTranscript:
		return "conversation"
	case domain.FormatEmail:
		return "message"
	case domain.FormatHTMLDocument, domain.FormatMarkdownDocument:
		return "document"
	default:
		return "content"
	}
}

func reduction(cleaned, original int) int {
	if original <= 0 {
		return 0
	}
	return int(math.Round((1 - float64(cleaned)/float64(original)) * 100))
}

// Hash is the hex sha256 of the chunk text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
