package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpretzinger/idudesRAG/internal/chunker"
	"github.com/cpretzinger/idudesRAG/internal/domain"
)

type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, string) (int, error) {
	return 0, errors.New("encoding unavailable")
}

func piecesOf(t *testing.T, text string, target, overlap int, det domain.DetectionResult) []chunker.Piece {
	t.Helper()
	s, err := chunker.New(target, overlap)
	require.NoError(t, err)
	return s.Segment(text, det)
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("Should number chunks and set the total on every chunk", func(t *testing.T) {
		text := "One short paragraph.\n\nAnother short paragraph.\n\nA third one here."
		pieces := piecesOf(t, text, 25, 5, domain.DetectionResult{})
		require.Len(t, pieces, 3)

		chunks := New(nil).Enrich(ctx, pieces, domain.DetectionResult{LikelyFormat: domain.FormatPlainText, Confidence: 0.05}, 200,
			Source{DocumentID: "doc-1", Steps: []string{"aggressive_whitespace"}})
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, "doc-1", c.DocumentID)
			assert.Equal(t, i, c.Index)
			assert.Equal(t, 3, c.TotalChunks)
			assert.Equal(t, pieces[i].Text, c.Text)
			assert.Equal(t, domain.FormatPlainText, c.Metadata.Format)
			assert.Equal(t, "plain_text", c.ContentType)
			assert.Equal(t, "content", c.SectionType)
			assert.Equal(t, []string{"aggressive_whitespace"}, c.Metadata.StepsApplied)
			assert.Equal(t, pieces[i].Body, c.Text[c.Metadata.OverlapPrefix:])
			assert.Len(t, c.Metadata.Hash, 64)
		}
		assert.Zero(t, chunks[0].OverlapSize)
		assert.Equal(t, "Another short paragraph.", chunks[1].Text[chunks[1].Metadata.OverlapPrefix:])
		assert.Equal(t, len([]rune("Another short paragraph.")), chunks[1].Size)
	})

	t.Run("Should compute reduction against the original length", func(t *testing.T) {
		chunks := New(nil).Enrich(ctx, []chunker.Piece{{Text: "abcdefghij", Body: "abcdefghij", End: 10}},
			domain.DetectionResult{}, 40, Source{})
		require.Len(t, chunks, 1)
		assert.Equal(t, 10, chunks[0].Metadata.CleanedLength)
		assert.Equal(t, 75, chunks[0].Metadata.ReductionPercent)

		chunks = New(nil).Enrich(ctx, []chunker.Piece{{Text: "abc", Body: "abc"}}, domain.DetectionResult{}, 0, Source{})
		assert.Zero(t, chunks[0].Metadata.ReductionPercent)
	})

	t.Run("Should tag episode chunks", func(t *testing.T) {
		text := "[EPISODE_START]\n\nWelcome to the show.\n\n[EPISODE_END]\n\n[EPISODE_START]\n\nSecond show here.\n\n[EPISODE_END]"
		det := domain.DetectionResult{LikelyFormat: domain.FormatPodcastTranscript, HasEpisodeDelimiters: true}
		chunks := New(nil).Enrich(ctx, piecesOf(t, text, 1000, 0, det), det, len(text), Source{})
		require.Len(t, chunks, 2)
		assert.Equal(t, "episode_1", chunks[0].Metadata.EpisodeID)
		assert.Equal(t, "episode_2", chunks[1].Metadata.EpisodeID)
		assert.Equal(t, "conversation", chunks[0].SectionType)
	})

	t.Run("Should describe transcript chunks", func(t *testing.T) {
		text := "[00:01:05] Host Anna: What is the key change?\n[00:02:10] John Smith: We moved to Go."
		det := domain.DetectionResult{LikelyFormat: domain.FormatTranscript, HasSpeakerLabels: true, HasTimestamps: true}
		chunks := New(nil).Enrich(ctx, piecesOf(t, text, 1000, 0, det), det, len(text), Source{ContentType: "Podcast"})
		require.Len(t, chunks, 1)
		md := chunks[0].Metadata
		assert.Equal(t, []string{"Host Anna", "John Smith"}, md.Speakers)
		require.NotNil(t, md.TimestampStart)
		require.NotNil(t, md.TimestampEnd)
		assert.Equal(t, 65, *md.TimestampStart)
		assert.Equal(t, 130, *md.TimestampEnd)
		assert.Equal(t, 2, md.SpeakerCount)
		assert.Equal(t, 2, md.TimestampCount)
		assert.Equal(t, "podcast", chunks[0].ContentType)
		assert.Equal(t, "conversation", chunks[0].SectionType)
		assert.InDelta(t, 7.5, chunks[0].ImportanceScore, 1e-9)
	})

	t.Run("Should skip transcript statistics for other formats", func(t *testing.T) {
		text := "[00:01:05] John Smith: hello"
		det := domain.DetectionResult{LikelyFormat: domain.FormatMarkdownDocument}
		chunks := New(nil).Enrich(ctx, piecesOf(t, text, 1000, 0, det), det, len(text), Source{})
		md := chunks[0].Metadata
		assert.Zero(t, md.SpeakerCount)
		assert.Zero(t, md.TimestampCount)
		assert.Nil(t, md.TimestampStart)
		assert.Empty(t, md.Speakers)
	})

	t.Run("Should fall back to the estimate when the counter fails", func(t *testing.T) {
		chunks := New(failingCounter{}).Enrich(ctx, []chunker.Piece{{Text: "twelve chars", Body: "twelve chars"}},
			domain.DetectionResult{}, 12, Source{Fallback: true, LowConfidence: true})
		assert.Equal(t, 3, chunks[0].Metadata.TokenCount)
		assert.True(t, chunks[0].Metadata.Fallback)
		assert.True(t, chunks[0].Metadata.LowConfidence)
	})

	t.Run("Should return an empty list for no pieces", func(t *testing.T) {
		assert.Empty(t, New(nil).Enrich(ctx, nil, domain.DetectionResult{}, 10, Source{}))
	})
}

func TestImportance(t *testing.T) {
	t.Run("Should start from the base score", func(t *testing.T) {
		assert.Equal(t, 5.0, Importance("plain statement", nil))
	})

	t.Run("Should add host question and term bonuses", func(t *testing.T) {
		assert.Equal(t, 6.0, Importance("plain", []string{"The HOST"}))
		assert.Equal(t, 5.5, Importance("really?", nil))
		assert.Equal(t, 6.0, Importance("a Crucial point", nil))
		assert.Equal(t, 5.0, Importance("keyboard", nil))
		assert.Equal(t, 7.5, Importance("key question?", []string{"host"}))
	})
}

func TestTranscriptParsing(t *testing.T) {
	t.Run("Should parse a transcript line", func(t *testing.T) {
		tl, ok := ParseTranscriptLine("[01:02:03] Jane Doe : Hello there: friend")
		require.True(t, ok)
		assert.Equal(t, "01:02:03", tl.Timestamp)
		assert.Equal(t, 3723, tl.Seconds)
		assert.Equal(t, "Jane Doe", tl.Speaker)
		assert.Equal(t, "Hello there: friend", tl.Text)
	})

	t.Run("Should reject lines without the transcript shape", func(t *testing.T) {
		for _, line := range []string{"Jane Doe: hi", "[01:02] Jane: hi", "[01:02:03] no colon here", ""} {
			_, ok := ParseTranscriptLine(line)
			assert.False(t, ok, line)
		}
	})

	t.Run("Should convert timestamps to seconds", func(t *testing.T) {
		secs, err := TimeToSeconds("00:12:34")
		require.NoError(t, err)
		assert.Equal(t, 754, secs)
		secs, err = TimeToSeconds("2:05")
		require.NoError(t, err)
		assert.Equal(t, 125, secs)
		for _, bad := range []string{"", "12", "1:2:3:4", "00:61:00", "aa:bb"} {
			_, err := TimeToSeconds(bad)
			assert.Error(t, err, bad)
		}
	})
}

func TestLookupProfile(t *testing.T) {
	t.Run("Should find known content types regardless of case", func(t *testing.T) {
		p, ok := LookupProfile(" Book ")
		require.True(t, ok)
		assert.Equal(t, 1200, p.TargetSize)
		assert.Equal(t, 150, p.Overlap)
		assert.Equal(t, "chapter", p.SectionType)
		_, ok = LookupProfile("spreadsheet")
		assert.False(t, ok)
	})
}

func TestEstimateTokens(t *testing.T) {
	t.Run("Should round rune counts up to whole tokens", func(t *testing.T) {
		assert.Equal(t, 0, EstimateTokens(""))
		assert.Equal(t, 1, EstimateTokens("abc"))
		assert.Equal(t, 2, EstimateTokens("ünïcödé"))
	})
}

func TestTiktokenCounter(t *testing.T) {
	t.Run("Should report a counter built without an encoder", func(t *testing.T) {
		var tc TiktokenCounter
		_, err := tc.CountTokens(context.Background(), "hello")
		require.Error(t, err)
		assert.Empty(t, tc.Encoding())
	})
}
