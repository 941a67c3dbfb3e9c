package clean

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

// flattenMarkdown renders a markdown document as plain text: headings become plain lines,
// emphasis markers and link targets disappear, fenced code blocks are dropped.
func flattenMarkdown(src string) string {
	source := []byte(src)
	doc := markdownParser.Parse(text.NewReader(source))
	var b strings.Builder
	b.Grow(len(source))

	writeLines := func(lines *text.Segments) {
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if entering {
				writeLines(node.Lines())
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			if entering {
				writeLines(node.Lines())
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			if entering {
				writeLines(node.Segments)
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.Heading, *ast.Paragraph:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.ListItem, *ast.List:
			if !entering {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
