package clean

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// Minimal is the cleanup used when adaptive cleaning cannot be trusted: strip every tag,
// decode entities and collapse whitespace. It returns the trimmed input when stripping
// would leave nothing.
func Minimal(text string) string {
	s := html.UnescapeString(strictPolicy.Sanitize(text))
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankLineRunRe.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.TrimSpace(strings.Join(lines, "\n"))
	s = blankLineRunRe.ReplaceAllString(s, "\n\n")
	if s == "" {
		return strings.TrimSpace(text)
	}
	return s
}
