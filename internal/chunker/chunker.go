// Package chunker splits cleaned document text into bounded, ordered chunks.
//
// Chunks are spans of the input: every Piece records where its body sits in the segmented
// text, and the text between consecutive bodies is whitespace or an episode sentinel.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

// Piece is one raw chunk before enrichment.
type Piece struct {
	// Text is OverlapPrefix followed by Body.
	Text string
	Body string
	// Start and End are byte offsets of Body in the segmented text.
	Start int
	End   int
	// OverlapPrefix is the tail copied from the previous body plus a joining space.
	OverlapPrefix string
	// Episode is the 1-based episode ordinal, 0 when the piece is outside any episode.
	Episode int
}

// Segmenter holds the size limits for one pipeline configuration. All sizes are rune counts.
type Segmenter struct {
	target  int
	overlap int
}

// New returns a Segmenter aiming for target runes per chunk with overlap runes carried
// between neighbours. Limits that cannot produce chunks are ErrConfig.
func New(target, overlap int) (*Segmenter, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", domain.ErrConfig, target)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfig, overlap)
	}
	if overlap >= target {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than target size %d", domain.ErrConfig, overlap, target)
	}
	return &Segmenter{target: target, overlap: overlap}, nil
}

func (s *Segmenter) TargetSize() int { return s.target }

func (s *Segmenter) Overlap() int { return s.overlap }

type span struct {
	start int
	end   int
}

type unit struct {
	span
	episode int
}

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentinelRe       = regexp.MustCompile(regexp.QuoteMeta(domain.EpisodeStartToken) + "|" + regexp.QuoteMeta(domain.EpisodeEndToken))
)

// Segment splits text into pieces. Episode sentinels, when the detection saw episode delimiters,
// split the text first; otherwise paragraphs are accumulated up to the target size and oversized
// paragraphs fall through to sentence accumulation.
func (s *Segmenter) Segment(text string, det domain.DetectionResult) []Piece {
	var units []unit
	if det.HasEpisodeDelimiters && strings.Contains(text, domain.EpisodeStartToken) {
		units = s.episodes(text)
	} else if r, ok := trim(text, span{0, len(text)}); ok {
		units = s.paragraphs(text, r, 0)
	}
	return assemble(text, units, s.overlap)
}

// episodes treats the text between a start sentinel and the next sentinel as one episode.
// Episodes that fit are kept whole, larger ones go to sentence accumulation. Text outside
// any episode is paragraph-chunked so nothing is dropped.
func (s *Segmenter) episodes(src string) []unit {
	var out []unit
	episode, inside, pos := 0, false, 0
	emit := func(end int) {
		r, ok := trim(src, span{pos, end})
		if !ok {
			return
		}
		switch {
		case !inside:
			out = append(out, s.paragraphs(src, r, 0)...)
		case s.fits(src, r):
			out = append(out, unit{r, episode})
		default:
			out = append(out, s.sentences(src, r, episode)...)
		}
	}
	for _, m := range sentinelRe.FindAllStringIndex(src, -1) {
		emit(m[0])
		pos = m[1]
		if src[m[0]:m[1]] == domain.EpisodeStartToken {
			episode++
			inside = true
		} else {
			inside = false
		}
	}
	emit(len(src))
	return out
}

func (s *Segmenter) paragraphs(src string, r span, episode int) []unit {
	var (
		out []unit
		cur span
		has bool
	)
	for _, p := range splitSpans(src, r, paragraphBreakRe) {
		if has {
			if joined := (span{cur.start, p.end}); s.fits(src, joined) {
				cur = joined
				continue
			}
			out = append(out, unit{cur, episode})
			has = false
		}
		if s.fits(src, p) {
			cur, has = p, true
			continue
		}
		out = append(out, s.sentences(src, p, episode)...)
	}
	if has {
		out = append(out, unit{cur, episode})
	}
	return out
}

func (s *Segmenter) fits(src string, r span) bool {
	return utf8.RuneCountInString(src[r.start:r.end]) <= s.target
}

// assemble turns body spans into pieces and prepends the overlap tail of the previous body.
func assemble(src string, units []unit, overlap int) []Piece {
	pieces := make([]Piece, len(units))
	for i, u := range units {
		body := src[u.start:u.end]
		p := Piece{Text: body, Body: body, Start: u.start, End: u.end, Episode: u.episode}
		if i > 0 && overlap > 0 {
			if tail := strings.TrimLeftFunc(lastRunes(pieces[i-1].Body, overlap), unicode.IsSpace); tail != "" {
				p.OverlapPrefix = tail + " "
				p.Text = p.OverlapPrefix + body
			}
		}
		pieces[i] = p
	}
	return pieces
}

// splitSpans splits r on sep and returns the trimmed, non-empty parts.
func splitSpans(src string, r span, sep *regexp.Regexp) []span {
	var out []span
	pos := r.start
	for _, m := range sep.FindAllStringIndex(src[r.start:r.end], -1) {
		if p, ok := trim(src, span{pos, r.start + m[0]}); ok {
			out = append(out, p)
		}
		pos = r.start + m[1]
	}
	if p, ok := trim(src, span{pos, r.end}); ok {
		out = append(out, p)
	}
	return out
}

func trim(src string, r span) (span, bool) {
	sub := src[r.start:r.end]
	left := len(sub) - len(strings.TrimLeftFunc(sub, unicode.IsSpace))
	right := len(strings.TrimRightFunc(sub, unicode.IsSpace))
	if left >= right {
		return span{}, false
	}
	return span{r.start + left, r.start + right}, true
}

// advance returns the byte offset n runes after pos.
func advance(src string, pos, n int) int {
	for ; n > 0 && pos < len(src); n-- {
		_, w := utf8.DecodeRuneInString(src[pos:])
		pos += w
	}
	return pos
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := len(s)
	for ; n > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return s[i:]
}
