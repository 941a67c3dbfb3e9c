package enrich

import (
	"math"
	"regexp"
	"strings"
)

const (
	baseImportance = 5.0
	maxImportance  = 10.0
)

var importantTermRe = regexp.MustCompile(`(?i)\b(?:important|key|crucial|significant)\b`)

// Importance scores a chunk for retrieval ranking. Host speakers, questions and explicit
// importance terms raise the base score.
func Importance(text string, speakers []string) float64 {
	score := baseImportance
	for _, s := range speakers {
		if strings.Contains(strings.ToLower(s), "host") {
			score++
			break
		}
	}
	if strings.Contains(text, "?") {
		score += 0.5
	}
	if importantTermRe.MatchString(text) {
		score++
	}
	return math.Min(maxImportance, score)
}
