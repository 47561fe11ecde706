package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown extracts readable text from markdown files. Formatting syntax
// (emphasis markers, link targets, heading hashes) is dropped while the
// written content, including code blocks, is kept in document order.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown returns the markdown extractor backed by a goldmark parser.
func NewMarkdown() *Markdown {
	return &Markdown{parser: goldmark.New()}
}

// Formats implements Extractor.
func (m *Markdown) Formats() []string { return []string{"md", "markdown"} }

// Extract implements Extractor.
func (m *Markdown) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}

	doc := m.parser.Parser().Parse(text.NewReader(data))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(data))
				}
			}
			return ast.WalkSkipChildren, nil
		default:
			// Separate block-level nodes so headings and paragraphs do not
			// run together in the extracted text.
			if n.Type() == ast.TypeBlock && sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown ast: %w", err)
	}

	return strings.TrimSpace(sb.String()), nil
}
