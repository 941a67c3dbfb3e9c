// Package clean applies format-aware transformations to normalized document text.
package clean

import (
	"regexp"
	"strings"

	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/logger"
)

// Step names recorded in Result.Steps.
const (
	StepEpisodeNormalization = "episode_normalization"
	StepEpisodeRemoval       = "episode_removal"
	StepEmailHeaders         = "email_headers_removed"
	StepSignatures           = "signatures_removed"
	StepHTMLTags             = "html_tags_removed"
	StepHTMLEntities         = "html_entities_decoded"
	StepSpeakersRemoved      = "speaker_labels_removed"
	StepSpeakersNormalized   = "speaker_labels_normalized"
	StepTimestampsRemoved    = "timestamps_removed"
	StepTimestampsNormalized = "timestamps_normalized"
	StepMarkdown             = "markdown_flattened"
	StepAggressiveWhitespace = "aggressive_whitespace"
	StepBasicWhitespace      = "basic_whitespace"
	StepSpecialChars         = "special_chars_normalized"
	StepFallback             = "fallback_cleanup"
)

var (
	episodeBeginRe = regexp.MustCompile(`(?i)-----BEGIN EPISODE.*?-----`)
	episodeEndRe   = regexp.MustCompile(`(?i)-----END EPISODE.*?-----`)

	emailHeaderRe = regexp.MustCompile(`(?mi)^(?:From|To|Subject|Date|Cc|Bcc|Reply-To|Sent):.*$`)
	replyLineRe   = regexp.MustCompile(`(?mi)^On.*wrote:$`)
	quoteMarkRe   = regexp.MustCompile(`(?m)^(?:>[ \t]?)+`)

	sigDelimiterRe = regexp.MustCompile(`(?ms)^--[ \t]*$.*`)
	closingRe      = regexp.MustCompile(`(?mi)^(?:Best regards|Kind regards|Warm regards|Sincerely|Thanks|Cheers|Regards),.*$`)
	sentFromRe     = regexp.MustCompile(`(?i)Sent from my (?:iPhone|iPad|Android|BlackBerry).*`)

	speakerNumberRe = regexp.MustCompile(`(?i)speaker[ \t]*(\d+)[ \t]*:[ \t]*`)
	speakerNameRe   = regexp.MustCompile(`(?m)^((?:\[[\d:]+\][ \t]*)?)([A-Z][a-z]+ [A-Z][a-z]+)[ \t]*:[ \t]*`)
	bracketedTimeRe = regexp.MustCompile(`\[\d{1,2}:\d{2}(?::\d{2})?\][ \t]*`)
	bareTimeRe      = regexp.MustCompile(`\b\d{1,2}:\d{2}:\d{2}\b[ \t]*`)
	normalizeTimeRe = regexp.MustCompile(`\[?\b(\d{1,2}:\d{2}:\d{2})\b\]?`)
	spaceRunRe      = regexp.MustCompile(`[ \t]+`)
	wideSpaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
	blankLineRunRe  = regexp.MustCompile(`\n{3,}`)

	specialCharReplacer = strings.NewReplacer(
		"\u200B", "", "\u200C", "", "\u200D", "", "\u2060", "", "\uFEFF", "",
		"\u00A0", " ",
		"\u2018", "'", "\u2019", "'",
		"\u201C", `"`, "\u201D", `"`,
		"\u2013", "-", "\u2014", "-",
		"\u2026", "...",
	)
)

// Result is the cleaned text plus the ordered names of the steps that ran.
type Result struct {
	Text  string
	Steps []string
}

// Cleaner applies the ordered cleaning steps. It holds no per-document state.
type Cleaner struct {
	log logger.Logger
}

func New(log logger.Logger) *Cleaner {
	if log == nil {
		log = logger.NewForTests()
	}
	return &Cleaner{log: log}
}

// Clean runs the ten cleaning steps in their fixed order. Steps whose detection flag or
// config toggle is off are skipped; a step that matches nothing is a no-op.
func (c *Cleaner) Clean(text string, det domain.DetectionResult, cfg domain.CleaningConfig) Result {
	s := text
	steps := make([]string, 0, 10)

	if det.HasEpisodeDelimiters {
		if cfg.PreserveEpisodeStructure {
			s = episodeBeginRe.ReplaceAllString(s, "\n"+domain.EpisodeStartToken+"\n")
			s = episodeEndRe.ReplaceAllString(s, "\n"+domain.EpisodeEndToken+"\n")
			steps = append(steps, StepEpisodeNormalization)
		} else {
			s = episodeBeginRe.ReplaceAllString(s, "")
			s = episodeEndRe.ReplaceAllString(s, "")
			steps = append(steps, StepEpisodeRemoval)
		}
	}

	if det.HasEmailHeaders && cfg.RemoveEmailHeaders {
		s = emailHeaderRe.ReplaceAllString(s, "")
		s = replyLineRe.ReplaceAllString(s, "")
		s = quoteMarkRe.ReplaceAllString(s, "")
		steps = append(steps, StepEmailHeaders)
	}

	if det.HasSignature && cfg.RemoveSignatures {
		s = sigDelimiterRe.ReplaceAllString(s, "")
		s = closingRe.ReplaceAllString(s, "")
		s = sentFromRe.ReplaceAllString(s, "")
		steps = append(steps, StepSignatures)
	}

	if det.HasHTMLTags {
		s = stripHTML(s)
		steps = append(steps, StepHTMLTags)
	}

	if det.HasHTMLEntities {
		s = DecodeEntities(s)
		steps = append(steps, StepHTMLEntities)
	}

	if det.HasSpeakerLabels {
		if cfg.PreserveSpeakerLabels {
			s = speakerNumberRe.ReplaceAllString(s, "Speaker ${1}: ")
			s = speakerNameRe.ReplaceAllString(s, "${1}${2}: ")
			steps = append(steps, StepSpeakersNormalized)
		} else {
			s = speakerNumberRe.ReplaceAllString(s, "")
			s = speakerNameRe.ReplaceAllString(s, "${1}")
			steps = append(steps, StepSpeakersRemoved)
		}
	}

	if det.HasTimestamps {
		if cfg.PreserveTimestamps {
			s = normalizeTimeRe.ReplaceAllString(s, "[${1}]")
			steps = append(steps, StepTimestampsNormalized)
		} else {
			s = bracketedTimeRe.ReplaceAllString(s, "")
			s = bareTimeRe.ReplaceAllString(s, "")
			steps = append(steps, StepTimestampsRemoved)
		}
	}

	if det.HasMarkdown {
		s = flattenMarkdown(s)
		steps = append(steps, StepMarkdown)
	}

	if cfg.AggressiveWhitespace {
		s = aggressiveWhitespace(s)
		steps = append(steps, StepAggressiveWhitespace)
	} else {
		s = wideSpaceRunRe.ReplaceAllString(s, " ")
		s = blankLineRunRe.ReplaceAllString(s, "\n\n")
		steps = append(steps, StepBasicWhitespace)
	}

	s = strings.TrimSpace(specialCharReplacer.Replace(s))
	steps = append(steps, StepSpecialChars)

	c.log.Debug("Cleaning applied", "format", det.LikelyFormat, "steps", strings.Join(steps, ","),
		"before", len(text), "after", len(s))
	return Result{Text: s, Steps: steps}
}

// aggressiveWhitespace trims every line, collapses space runs and keeps at most one blank line in a row.
func aggressiveWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = spaceRunRe.ReplaceAllString(strings.TrimSpace(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
