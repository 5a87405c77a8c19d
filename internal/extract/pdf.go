package extract

import (
	"fmt"
	"io"
	"os"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/bull/docfunnel/internal/document"
)

// PDFExtractor extracts per-page plain text from PDF files. Unreadable
// pages are kept as empty pages so page numbering stays aligned with the
// source document.
type PDFExtractor struct{}

// Extract reads the PDF and returns one Page per source page.
// ledongthuc/pdf needs a ReadSeeker with a known size, so the stream is
// spooled to a temp file first.
func (p *PDFExtractor) Extract(r io.Reader, name string) ([]document.Page, error) {
	tmp, err := os.CreateTemp("", "docfunnel-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	f, reader, err := pdflib.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]document.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			if t, err := page.GetPlainText(nil); err == nil {
				text = t
			}
		}
		pages = append(pages, document.Page{Number: i, Text: text})
	}
	return pages, nil
}
