package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor treats every top-level section of a markdown document as
// a page. A new page starts at each heading of SectionLevel or above.
type MarkdownExtractor struct {
	SectionLevel int
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{SectionLevel: 2}
}

func (m *MarkdownExtractor) Name() string {
	return "markdown"
}

func (m *MarkdownExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtraction, path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Sections(content), nil
}

// Sections splits parsed markdown into plain-text sections.
func (m *MarkdownExtractor) Sections(content []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(content))

	var pages []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pages = append(pages, s)
		}
		current.Reset()
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Heading:
				if node.Level <= m.SectionLevel {
					flush()
				}
				current.WriteString(extractText(node, content))
				current.WriteString("\n")
				return ast.WalkSkipChildren, nil
			case *ast.Text:
				current.Write(node.Segment.Value(content))
				if node.SoftLineBreak() || node.HardLineBreak() {
					current.WriteString("\n")
				}
			case *ast.CodeSpan:
				current.WriteString(extractText(node, content))
				return ast.WalkSkipChildren, nil
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					current.Write(seg.Value(content))
				}
			}
		} else {
			switch n.(type) {
			case *ast.Paragraph, *ast.ListItem, *ast.FencedCodeBlock, *ast.CodeBlock:
				current.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return pages
}

// extractText collects the text of a node's inline children.
func extractText(node ast.Node, source []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(source))
		case *ast.String:
			buf.Write(c.Value)
		default:
			buf.WriteString(extractText(child, source))
		}
	}
	return buf.String()
}
