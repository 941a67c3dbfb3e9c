package enrich

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	transcriptLineRe = regexp.MustCompile(`\[(\d{1,2}:\d{2}:\d{2})\]\s*([^:\n]+?)\s*:\s*(.+)`)
	speakerLabelRe   = regexp.MustCompile(`[A-Z][a-z]+ [A-Z][a-z]+:`)
	timestampRe      = regexp.MustCompile(`\d{1,2}:\d{2}:\d{2}|\[\d{2}:\d{2}\]`)
)

// TranscriptLine is one "[hh:mm:ss] Speaker: text" line.
type TranscriptLine struct {
	Timestamp string
	Seconds   int
	Speaker   string
	Text      string
}

func ParseTranscriptLine(line string) (TranscriptLine, bool) {
	m := transcriptLineRe.FindStringSubmatch(line)
	if m == nil {
		return TranscriptLine{}, false
	}
	secs, err := TimeToSeconds(m[1])
	if err != nil {
		return TranscriptLine{}, false
	}
	return TranscriptLine{
		Timestamp: m[1],
		Seconds:   secs,
		Speaker:   strings.TrimSpace(m[2]),
		Text:      strings.TrimSpace(m[3]),
	}, true
}

// ParseTranscript returns the parseable lines of text in order.
func ParseTranscript(text string) []TranscriptLine {
	var out []TranscriptLine
	for _, line := range strings.Split(text, "\n") {
		if tl, ok := ParseTranscriptLine(line); ok {
			out = append(out, tl)
		}
	}
	return out
}

// TimeToSeconds converts "hh:mm:ss" or "mm:ss" to seconds.
func TimeToSeconds(ts string) (int, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q: field out of range", ts)
		}
		total = total*60 + n
	}
	return total, nil
}
