package domain

type Format string

const (
	FormatPodcastTranscript Format = "podcast_transcript"
	FormatEmail             Format = "email"
	FormatHTMLDocument      Format = "html_document"
	FormatMarkdownDocument  Format = "markdown_document"
	FormatTranscript        Format = "transcript"
	FormatPlainText         Format = "plain_text"
	FormatUnknown           Format = "unknown"
)

// IsTranscript reports whether speaker and timestamp statistics are meaningful for the format.
func (f Format) IsTranscript() bool {
	return f == FormatPodcastTranscript || f == FormatTranscript
}

// Signal names a structural pattern matched by the format detector.
type Signal string

const (
	SignalEpisodeDelimiters Signal = "episode_delimiters"
	SignalHTMLTags          Signal = "html_tags"
	SignalHTMLEntities      Signal = "html_entities"
	SignalSpeakerLabels     Signal = "speaker_labels"
	SignalTimestamps        Signal = "timestamps"
	SignalEmailHeaders      Signal = "email_headers"
	SignalSignature         Signal = "signature"
	SignalMarkdown          Signal = "markdown"
	SignalNonLatinScript    Signal = "non_latin_script"
)

// DetectionResult is the immutable outcome of format detection.
type DetectionResult struct {
	LikelyFormat Format   `json:"likely_format"`
	Confidence   float64  `json:"confidence"`
	Indicators   []Signal `json:"indicators"`
	HTMLTagCount int      `json:"html_tag_count"`
	// Script is the first non-Latin script found, e.g. "Arabic".
	Script string `json:"script,omitempty"`

	HasEpisodeDelimiters bool `json:"has_episode_delimiters"`
	HasHTMLTags          bool `json:"has_html_tags"`
	HasHTMLEntities      bool `json:"has_html_entities"`
	HasSpeakerLabels     bool `json:"has_speaker_labels"`
	HasTimestamps        bool `json:"has_timestamps"`
	HasEmailHeaders      bool `json:"has_email_headers"`
	HasSignature         bool `json:"has_signature"`
	HasMarkdown          bool `json:"has_markdown"`
	HasNonLatinScript    bool `json:"has_non_latin_script"`
}

func (d DetectionResult) HasIndicator(s Signal) bool {
	for _, ind := range d.Indicators {
		if ind == s {
			return true
		}
	}
	return false
}
