// Package extract turns source files into ordered, page-indexed text. The
// downstream parser and chunker only ever see []document.Page, so new
// formats plug in behind the Extractor interface.
package extract

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bull/docfunnel/internal/document"
)

// Extractor converts one source file into its ordered pages.
type Extractor interface {
	Extract(r io.Reader, name string) ([]document.Page, error)
}

// ForFile selects an extractor by file extension.
func ForFile(name string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".md", ".markdown":
		return NewMarkdownExtractor(), nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", filepath.Ext(name))
	}
}
