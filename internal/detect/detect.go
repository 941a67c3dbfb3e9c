// Package detect classifies raw document text into a structural format.
package detect

import (
	"math"
	"regexp"
	"unicode"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

// Weights are the per-signal confidence contributions and the per-format bonuses.
// They are tunable; only the classification precedence is fixed.
type Weights struct {
	EpisodeDelimiters float64 `yaml:"episode_delimiters"`
	HTMLTags          float64 `yaml:"html_tags"`
	HTMLEntities      float64 `yaml:"html_entities"`
	SpeakerLabels     float64 `yaml:"speaker_labels"`
	Timestamps        float64 `yaml:"timestamps"`
	EmailHeaders      float64 `yaml:"email_headers"`
	Signature         float64 `yaml:"signature"`
	Markdown          float64 `yaml:"markdown"`
	NonLatinScript    float64 `yaml:"non_latin_script"`

	PodcastBonus    float64 `yaml:"podcast_bonus"`
	EmailBonus      float64 `yaml:"email_bonus"`
	HTMLBonus       float64 `yaml:"html_bonus"`
	MarkdownBonus   float64 `yaml:"markdown_bonus"`
	TranscriptBonus float64 `yaml:"transcript_bonus"`
	PlainTextBonus  float64 `yaml:"plain_text_bonus"`

	// HTMLSignalThreshold is the tag count above which html_tags is recorded as an indicator.
	HTMLSignalThreshold int `yaml:"html_signal_threshold"`
	// HTMLDocumentThreshold is the tag count above which the text is classified as an HTML document.
	HTMLDocumentThreshold int `yaml:"html_document_threshold"`
}

func DefaultWeights() Weights {
	return Weights{
		EpisodeDelimiters:     0.30,
		HTMLTags:              0.20,
		HTMLEntities:          0.10,
		SpeakerLabels:         0.20,
		Timestamps:            0.15,
		EmailHeaders:          0.25,
		Signature:             0.10,
		Markdown:              0.15,
		NonLatinScript:        0.10,
		PodcastBonus:          0.20,
		EmailBonus:            0.15,
		HTMLBonus:             0.10,
		MarkdownBonus:         0.10,
		TranscriptBonus:       0.10,
		PlainTextBonus:        0.05,
		HTMLSignalThreshold:   5,
		HTMLDocumentThreshold: 20,
	}
}

var (
	episodeRe    = regexp.MustCompile(`(?i)-----BEGIN|-----END|Episode \d+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	entityRe     = regexp.MustCompile(`(?i)&[a-z]+;|&#\d+;|&#x[0-9a-f]+;`)
	speakerRe    = regexp.MustCompile(`(?i:<cite>|Speaker \d+:)|(?m:^(?:\[[\d:]+\]\s*)?[A-Z][a-z]+ [A-Z][a-z]+:)`)
	timestampRe  = regexp.MustCompile(`(?i)<time>|\d{1,2}:\d{2}:\d{2}|\[\d{2}:\d{2}\]`)
	emailHdrRe   = regexp.MustCompile(`(?mi)^(?:From|To|Subject|Date):`)
	emailReplyRe = regexp.MustCompile(`(?mi)^On.*wrote:$`)
	signatureRe  = regexp.MustCompile(`(?mi)^--\s*$|Best regards|Sincerely|Sent from my`)
	markdownRe   = regexp.MustCompile("(?m)^#{1,6}\\s|\\*\\*|__|\\[.*\\]\\(.*\\)|```")
)

// nonLatinScripts is checked in order; the first hit names DetectionResult.Script.
var nonLatinScripts = []struct {
	name  string
	table *unicode.RangeTable
}{
	{"Arabic", unicode.Arabic},
	{"Cyrillic", unicode.Cyrillic},
	{"Greek", unicode.Greek},
	{"Hebrew", unicode.Hebrew},
	{"Devanagari", unicode.Devanagari},
	{"Bengali", unicode.Bengali},
	{"Thai", unicode.Thai},
	{"Han", unicode.Han},
	{"Hiragana", unicode.Hiragana},
	{"Katakana", unicode.Katakana},
	{"Hangul", unicode.Hangul},
}

// Detector runs the signal battery with a fixed set of weights.
type Detector struct {
	w Weights
}

func New(w Weights) *Detector {
	return &Detector{w: w}
}

// Detect classifies text with the default weights.
func Detect(text string) domain.DetectionResult {
	return New(DefaultWeights()).Detect(text)
}

// Detect scores text against every signal and picks a format by precedence.
// It has no side effects and returns identical results for identical input.
func (d *Detector) Detect(text string) domain.DetectionResult {
	res := domain.DetectionResult{Indicators: make([]domain.Signal, 0, 9)}
	confidence := 0.0
	hit := func(sig domain.Signal, weight float64) {
		res.Indicators = append(res.Indicators, sig)
		confidence += weight
	}

	if episodeRe.MatchString(text) {
		res.HasEpisodeDelimiters = true
		hit(domain.SignalEpisodeDelimiters, d.w.EpisodeDelimiters)
	}
	res.HTMLTagCount = len(htmlTagRe.FindAllStringIndex(text, -1))
	res.HasHTMLTags = res.HTMLTagCount > 0
	if res.HTMLTagCount > d.w.HTMLSignalThreshold {
		hit(domain.SignalHTMLTags, d.w.HTMLTags)
	}
	if entityRe.MatchString(text) {
		res.HasHTMLEntities = true
		hit(domain.SignalHTMLEntities, d.w.HTMLEntities)
	}
	if speakerRe.MatchString(text) {
		res.HasSpeakerLabels = true
		hit(domain.SignalSpeakerLabels, d.w.SpeakerLabels)
	}
	if timestampRe.MatchString(text) {
		res.HasTimestamps = true
		hit(domain.SignalTimestamps, d.w.Timestamps)
	}
	if emailHdrRe.MatchString(text) || emailReplyRe.MatchString(text) {
		res.HasEmailHeaders = true
		hit(domain.SignalEmailHeaders, d.w.EmailHeaders)
	}
	if signatureRe.MatchString(text) {
		res.HasSignature = true
		hit(domain.SignalSignature, d.w.Signature)
	}
	if markdownRe.MatchString(text) {
		res.HasMarkdown = true
		hit(domain.SignalMarkdown, d.w.Markdown)
	}
	if script := firstNonLatinScript(text); script != "" {
		res.HasNonLatinScript = true
		res.Script = script
		hit(domain.SignalNonLatinScript, d.w.NonLatinScript)
	}

	format, bonus := d.classify(&res)
	res.LikelyFormat = format
	res.Confidence = clamp01(confidence + bonus)
	return res
}

func (d *Detector) classify(res *domain.DetectionResult) (domain.Format, float64) {
	switch {
	case res.HasEpisodeDelimiters && res.HasSpeakerLabels:
		return domain.FormatPodcastTranscript, d.w.PodcastBonus
	case res.HasEmailHeaders:
		return domain.FormatEmail, d.w.EmailBonus
	case res.HTMLTagCount > d.w.HTMLDocumentThreshold:
		return domain.FormatHTMLDocument, d.w.HTMLBonus
	case res.HasMarkdown:
		return domain.FormatMarkdownDocument, d.w.MarkdownBonus
	case res.HasSpeakerLabels || res.HasTimestamps:
		return domain.FormatTranscript, d.w.TranscriptBonus
	case !res.HasHTMLTags && !res.HasEmailHeaders:
		return domain.FormatPlainText, d.w.PlainTextBonus
	default:
		return domain.FormatUnknown, 0
	}
}

func firstNonLatinScript(text string) string {
	for _, r := range text {
		if r < 0x0370 || !unicode.IsLetter(r) {
			continue
		}
		for _, s := range nonLatinScripts {
			if unicode.Is(s.table, r) {
				return s.name
			}
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
