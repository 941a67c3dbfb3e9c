package clean

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// stripHTML drops every tag while keeping their text. Line breaks become newlines, block closers
// become paragraph breaks, and cite/time elements are rewritten to their plain-text label forms
// so the speaker and timestamp steps can handle them. Entities are left for DecodeEntities.
// A '<' that never closes is not a tag: the tokenizer stops inside it, and the input from
// there on is kept as text.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))
	skip, consumed := 0, 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if consumed < len(s) {
				b.WriteString(s[consumed:])
			}
			return b.String()
		}
		consumed += len(z.Raw())
		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Raw())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Br:
				b.WriteByte('\n')
			case atom.Time:
				if tt == html.StartTagToken {
					b.WriteByte('[')
				}
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
				atom.Blockquote, atom.Section, atom.Article, atom.Table, atom.Ul, atom.Ol, atom.Pre:
				b.WriteString("\n\n")
			case atom.Li, atom.Tr:
				b.WriteByte('\n')
			case atom.Cite:
				b.WriteByte(':')
			case atom.Time:
				b.WriteByte(']')
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			}
		}
	}
}
