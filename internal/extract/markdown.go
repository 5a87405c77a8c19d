package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/bull/docfunnel/internal/document"
)

// MarkdownExtractor maps a markdown document onto synthetic pages: any
// preamble before the first top-level heading becomes page 1 and each
// top-level section becomes one page after it. Markdown has no physical
// pages, but this keeps the structural parser's page-based section mapping
// working unchanged.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a markdown extractor with heading IDs
// enabled, which the section boundary lookup relies on.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

// Extract splits the markdown source at top-level headings.
func (m *MarkdownExtractor) Extract(r io.Reader, name string) ([]document.Page, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(1),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headings: %w", err)
	}

	// No top-level headings: the whole document is one page and structure
	// detection falls through to the parser's own strategies.
	if len(tree.Items) == 0 {
		return []document.Page{{Number: 1, Text: string(source)}}, nil
	}

	// Collect heading byte offsets in document order.
	starts := make([]int, 0, len(tree.Items))
	for _, item := range tree.Items {
		h := findHeadingByID(doc, string(item.ID))
		if h == nil || h.Lines().Len() == 0 {
			continue
		}
		starts = append(starts, lineStart(source, h.Lines().At(0).Start))
	}
	if len(starts) == 0 {
		return []document.Page{{Number: 1, Text: string(source)}}, nil
	}

	var pages []document.Page
	number := 1
	if preamble := strings.TrimSpace(string(source[:starts[0]])); preamble != "" {
		pages = append(pages, document.Page{Number: number, Text: preamble})
		number++
	}
	for i, start := range starts {
		end := len(source)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		pages = append(pages, document.Page{
			Number: number,
			Text:   strings.TrimSpace(string(source[start:end])),
		})
		number++
	}
	return pages, nil
}

// findHeadingByID locates a heading node by its auto-generated ID.
func findHeadingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart walks back from a segment offset to the start of its line so
// the heading marker itself is kept in the page text.
func lineStart(source []byte, offset int) int {
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}
