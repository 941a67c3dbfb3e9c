// Package normalize performs the format-independent text normalization that runs before detection.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

var (
	horizontalSpaceRe = regexp.MustCompile(`[\t\f\v \x{00A0}\x{1680}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]+`)
	blankLinesRe      = regexp.MustCompile(`\n{3,}`)

	punctuationReplacer = strings.NewReplacer(
		"\u2018", "'", "\u2019", "'", "\u201A", "'", "\u201B", "'",
		"\u201C", `"`, "\u201D", `"`, "\u201E", `"`, "\u201F", `"`,
		"\u2013", "-", "\u2014", "-", "\u2015", "-", "\u2212", "-",
		"\u2026", "...",
	)
)

// combiningDiacritic matches the Combining Diacritical Marks block only, so marks that
// carry meaning in non-Latin scripts survive.
func combiningDiacritic(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(combiningDiacritic)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize unifies line endings, strips diacritics, folds typographic punctuation to ASCII
// and collapses whitespace. It is deterministic and returns domain.ErrInput when nothing usable remains.
func Normalize(text string) (string, error) {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ToValidUTF8(s, "")
	s = stripDiacritics(s)
	s = punctuationReplacer.Replace(s)
	s = horizontalSpaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty after normalization", domain.ErrInput)
	}
	return s, nil
}

// IsBlank reports whether s has no visible characters.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
