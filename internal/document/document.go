// Package document defines the core domain types shared by the structural
// parser, chunker, vector index and retrieval funnel.
package document

import "strings"

// Page is one extracted page of a source document. Page numbers are 1-based.
type Page struct {
	Number int
	Text   string
	Tables []Table
}

// Table is an extracted table block: rows of cells.
type Table struct {
	Page int
	Rows [][]string
}

// Text renders the table as pipe-separated rows for embedding.
// Empty cells render as empty strings; nil rows are skipped.
func (t Table) Text() string {
	var rows []string
	for _, row := range t.Rows {
		if len(row) == 0 {
			continue
		}
		rows = append(rows, strings.Join(row, " | "))
	}
	return strings.Join(rows, "\n")
}

// Document is one ingested source document: an identifier plus its ordered
// pages. Immutable once built.
type Document struct {
	ID    string
	Name  string // source file name, used for the fallback section title
	Pages []Page
}

// PageCount returns the number of extracted pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// TOCEntry is a detected table-of-contents entry. StartPage is always set;
// EndPage is filled during section mapping (start of the next entry minus
// one, or the document's last page for the final entry).
type TOCEntry struct {
	Title     string `json:"title"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// Section is a contiguous page range of a document with its concatenated
// text. Derived deterministically from the document and its TOC entries.
type Section struct {
	Title     string
	StartPage int
	EndPage   int
	Text      string
	Tables    []Table
}

// ChunkType distinguishes sliding-window text chunks from standalone table
// chunks.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTable ChunkType = "table"
)

// Chunk is one retrieval unit: a bounded slice of section text or a whole
// table. Identity is (document ID, Index).
type Chunk struct {
	DocumentID string
	Index      int
	Section    string
	StartPage  int
	EndPage    int
	Tokens     int
	Type       ChunkType
	Text       string
}

// Query is a retrieval request against one ingested document.
type Query struct {
	Text  string // free-text query
	Topic string // optional section/topic hint for the coarse filter
	TopK  int    // requested result count; 0 means the engine default
}

// SearchText returns the text to embed and rerank against. When a topic hint
// is present it names the subject more precisely than the full query.
func (q Query) SearchText() string {
	if q.Topic != "" {
		return q.Topic
	}
	return q.Text
}

// ScoredChunk is one retrieval result: a chunk plus its final relevance
// score. A result set is ordered by descending score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
