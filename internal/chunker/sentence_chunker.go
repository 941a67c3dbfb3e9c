package chunker

import (
	"regexp"
	"strings"
)

// sentenceEndRe matches terminal punctuation, optional closing quotes or brackets, and the
// whitespace after it. Group 1 is the part that belongs to the sentence.
var sentenceEndRe = regexp.MustCompile(`([.!?]+["')\]]*)(?:\s+|$)`)

// windowBoundaries lists cut points in preference order; keep is how many bytes of the
// separator stay with the left side.
var windowBoundaries = []struct {
	sep  string
	keep int
}{
	{"\n\n", 0},
	{"\n", 0},
	{". ", 1},
	{"! ", 1},
	{"? ", 1},
	{"; ", 1},
	{", ", 1},
	{" ", 0},
}

type sentence struct {
	span
	terminated bool
}

func splitSentences(src string, r span) []sentence {
	sub := src[r.start:r.end]
	var out []sentence
	pos := 0
	for _, m := range sentenceEndRe.FindAllStringSubmatchIndex(sub, -1) {
		if sp, ok := trim(src, span{r.start + pos, r.start + m[3]}); ok {
			out = append(out, sentence{sp, true})
		}
		pos = m[1]
	}
	if sp, ok := trim(src, span{r.start + pos, r.end}); ok {
		out = append(out, sentence{sp, false})
	}
	return out
}

// sentences accumulates whole sentences up to the target size. A terminated sentence is never
// split, so it may exceed the target on its own; unterminated oversized text is window-cut.
func (s *Segmenter) sentences(src string, r span, episode int) []unit {
	var (
		out []unit
		cur span
		has bool
	)
	for _, sn := range splitSentences(src, r) {
		if has {
			if joined := (span{cur.start, sn.end}); s.fits(src, joined) {
				cur = joined
				continue
			}
			out = append(out, unit{cur, episode})
			has = false
		}
		switch {
		case s.fits(src, sn.span):
			cur, has = sn.span, true
		case sn.terminated:
			out = append(out, unit{sn.span, episode})
		default:
			out = append(out, s.window(src, sn.span, episode)...)
		}
	}
	if has {
		out = append(out, unit{cur, episode})
	}
	return out
}

// window cuts r into pieces of at most target runes. Each cut uses the most preferred boundary
// found in the back half of the window, or the window edge when there is none.
func (s *Segmenter) window(src string, r span, episode int) []unit {
	var out []unit
	pos := r.start
	for {
		rest, ok := trim(src, span{pos, r.end})
		if !ok {
			return out
		}
		if s.fits(src, rest) {
			return append(out, unit{rest, episode})
		}
		pos = rest.start
		limit := advance(src, pos, s.target)
		half := advance(src, pos, (s.target+1)/2)
		cut := limit
		for _, b := range windowBoundaries {
			if i := strings.LastIndex(src[half:limit], b.sep); i >= 0 {
				cut = half + i + b.keep
				break
			}
		}
		if piece, ok := trim(src, span{pos, cut}); ok {
			out = append(out, unit{piece, episode})
		}
		pos = cut
	}
}
