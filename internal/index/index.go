// Package index stores chunk embeddings with their metadata and serves
// similarity search over them. The Index contract is deliberately narrow so
// the underlying similarity-search engine stays swappable without touching
// the retrieval funnel.
package index

import (
	"context"
	"errors"

	"github.com/bull/docfunnel/internal/document"
)

var (
	ErrStoreUnreachable  = errors.New("vector store unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is one stored embedding: a chunk's vector plus the metadata needed
// for filtering and result assembly. One record per chunk.
type Record struct {
	ChunkID    string // deterministic UUID derived from (document ID, chunk index)
	DocumentID string
	ChunkIndex int
	Section    string
	StartPage  int
	EndPage    int
	Type       document.ChunkType
	Tokens     int
	Text       string
	Vector     []float32
}

// Scored is a search hit: the record and its similarity to the query vector,
// higher meaning closer.
type Scored struct {
	Record Record
	Score  float64
}

// Filter restricts a search by exact metadata match. Zero-valued fields are
// ignored.
type Filter struct {
	Section string
	Type    document.ChunkType
}

// Index is the vector store seen by the ingestion pipeline and the retrieval
// funnel. Each document ID names an isolated namespace: Search never returns
// records from another document, and a namespace with no records yields an
// empty result, not an error.
type Index interface {
	// Upsert writes records idempotently; a record with an existing chunk ID
	// overwrites the stored one.
	Upsert(ctx context.Context, documentID string, records []Record) error

	// Search returns up to limit records ordered by descending similarity,
	// ties broken by ascending chunk index.
	Search(ctx context.Context, documentID string, vector []float32, limit int, filter *Filter) ([]Scored, error)

	// Delete removes every record in the document's namespace. Deleting an
	// absent namespace is a no-op.
	Delete(ctx context.Context, documentID string) error
}
