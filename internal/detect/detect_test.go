package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

func TestDetect(t *testing.T) {
	t.Run("Should classify signal-free prose as plain text with low confidence", func(t *testing.T) {
		res := Detect("The river bends twice before it reaches the town. Nobody remembers who built the bridge.")
		assert.Equal(t, domain.FormatPlainText, res.LikelyFormat)
		assert.InDelta(t, 0.05, res.Confidence, 1e-9)
		assert.Empty(t, res.Indicators)
		assert.False(t, res.HasHTMLTags)
	})

	t.Run("Should classify episode delimiters with speakers as a podcast transcript", func(t *testing.T) {
		text := "-----BEGIN EPISODE 1-----\nJohn Smith: Welcome back.\nJane Doe: Thanks for having me.\n-----END EPISODE 1-----"
		res := Detect(text)
		assert.Equal(t, domain.FormatPodcastTranscript, res.LikelyFormat)
		assert.True(t, res.HasEpisodeDelimiters)
		assert.True(t, res.HasSpeakerLabels)
		assert.InDelta(t, 0.3+0.2+0.2, res.Confidence, 1e-9)
		assert.Equal(t, []domain.Signal{domain.SignalEpisodeDelimiters, domain.SignalSpeakerLabels}, res.Indicators)
	})

	t.Run("Should prefer email over html and markdown", func(t *testing.T) {
		text := "From: alice@example.com\nSubject: **Quarterly** numbers\n\nSee attached.\n\nBest regards,\nAlice"
		res := Detect(text)
		assert.Equal(t, domain.FormatEmail, res.LikelyFormat)
		assert.True(t, res.HasEmailHeaders)
		assert.True(t, res.HasSignature)
		assert.True(t, res.HasMarkdown)
		assert.InDelta(t, 0.25+0.1+0.15+0.15, res.Confidence, 1e-9)
	})

	t.Run("Should classify tag-dense text as an html document", func(t *testing.T) {
		text := strings.Repeat("<p>para &amp; more</p>", 11)
		res := Detect(text)
		assert.Equal(t, 22, res.HTMLTagCount)
		assert.Equal(t, domain.FormatHTMLDocument, res.LikelyFormat)
		assert.True(t, res.HasIndicator(domain.SignalHTMLTags))
		assert.True(t, res.HasHTMLEntities)
	})

	t.Run("Should fall to unknown when a few tags are present without other structure", func(t *testing.T) {
		res := Detect("Plain words with a <b>bold</b> tag.")
		assert.Equal(t, domain.FormatUnknown, res.LikelyFormat)
		assert.True(t, res.HasHTMLTags)
		assert.False(t, res.HasIndicator(domain.SignalHTMLTags))
		assert.InDelta(t, 0.0, res.Confidence, 1e-9)
	})

	t.Run("Should classify markdown headings and links", func(t *testing.T) {
		res := Detect("# Guide\n\nRead the [docs](https://example.com) first.")
		assert.Equal(t, domain.FormatMarkdownDocument, res.LikelyFormat)
		assert.InDelta(t, 0.25, res.Confidence, 1e-9)
	})

	t.Run("Should classify timestamped lines without episodes as a transcript", func(t *testing.T) {
		res := Detect("[00:01:05] Host Name: what happened next\n[00:01:09] Guest Person: we shipped it")
		assert.Equal(t, domain.FormatTranscript, res.LikelyFormat)
		assert.True(t, res.HasTimestamps)
		assert.True(t, res.HasSpeakerLabels)
	})

	t.Run("Should flag non-Latin script and name it", func(t *testing.T) {
		res := Detect("یہ ایک مثال ہے")
		assert.True(t, res.HasNonLatinScript)
		assert.Equal(t, "Arabic", res.Script)
		assert.Equal(t, domain.FormatPlainText, res.LikelyFormat)
		assert.InDelta(t, 0.15, res.Confidence, 1e-9)
	})

	t.Run("Should clamp confidence to one", func(t *testing.T) {
		text := "-----BEGIN EPISODE 2-----\nFrom: x\nJohn Smith: hi &amp; <b>x</b><i>y</i><u>z</u><p>a</p>\n" +
			"[00:10] 01:02:03 **bold** Sincerely\nاردو"
		res := Detect(text)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	})

	t.Run("Should return identical results on repeated calls", func(t *testing.T) {
		text := "Speaker 1: hello\n12:30:01 and more <br> &#39;"
		assert.Equal(t, Detect(text), Detect(text))
	})
}

func TestDetector_CustomWeights(t *testing.T) {
	t.Run("Should apply tuned weights without changing precedence", func(t *testing.T) {
		w := DefaultWeights()
		w.Markdown = 0.5
		w.MarkdownBonus = 0
		res := New(w).Detect("## Title\n\nbody")
		assert.Equal(t, domain.FormatMarkdownDocument, res.LikelyFormat)
		assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	})
}
