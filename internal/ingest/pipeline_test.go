package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docfunnel/internal/chunker"
	"github.com/bull/docfunnel/internal/document"
	"github.com/bull/docfunnel/internal/index"
	"github.com/bull/docfunnel/internal/parser"
)

// hashEmbedder derives a deterministic vector from each text so repeated
// ingestions produce identical index content.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var h float32
		for _, r := range t {
			h += float32(r)
		}
		out[i] = []float32{h, float32(len(t))}
	}
	return out, nil
}

// failingIndex rejects writes and records cleanup calls.
type failingIndex struct {
	index.MemoryIndex
	deleted bool
}

func (f *failingIndex) Upsert(ctx context.Context, documentID string, records []index.Record) error {
	return errors.New("write refused")
}

func (f *failingIndex) Delete(ctx context.Context, documentID string) error {
	f.deleted = true
	return nil
}

func newPipeline(idx index.Index) *Pipeline {
	return NewPipeline(
		parser.New(parser.Options{}, nil),
		chunker.New(chunker.Config{MaxTokens: 20, OverlapTokens: 5, BoundaryTolerance: 2}),
		hashEmbedder{},
		idx,
		nil,
	)
}

// chapterDoc builds a document with two chapter sections, long enough to
// chunk, plus one table.
func chapterDoc(id string) *document.Document {
	longBody := ""
	for i := 0; i < 60; i++ {
		longBody += fmt.Sprintf("word%d ", i)
	}
	doc := &document.Document{
		ID: id,
		Pages: []document.Page{
			{Number: 1, Text: "Chapter 1: Alpha\n" + longBody},
			{Number: 2, Text: "Chapter 2: Beta\n" + longBody},
		},
	}
	doc.Pages[1].Tables = []document.Table{{Page: 2, Rows: [][]string{{"k", "v"}, {"a", "1"}}}}
	return doc
}

func TestIngest_StatsAndStorage(t *testing.T) {
	idx := index.NewMemoryIndex()
	p := newPipeline(idx)

	result, err := p.Ingest(context.Background(), chapterDoc("doc-1"))
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, 2, result.Pages)
	assert.Len(t, result.Sections, 2)
	assert.Equal(t, 1, result.TableCount, "table count must match extracted table blocks")
	assert.Greater(t, result.ChunkCount, 2)
	assert.Empty(t, result.EmptySections)

	// Every produced chunk is stored.
	assert.Equal(t, result.ChunkCount, idx.Count("doc-1"))
}

// TestIngest_Idempotent: re-running ingestion with identical inputs yields
// the identical chunk set — upsert overwrites, nothing duplicates.
func TestIngest_Idempotent(t *testing.T) {
	idx := index.NewMemoryIndex()
	p := newPipeline(idx)

	first, err := p.Ingest(context.Background(), chapterDoc("doc-2"))
	require.NoError(t, err)
	second, err := p.Ingest(context.Background(), chapterDoc("doc-2"))
	require.NoError(t, err)

	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, first.ChunkCount, idx.Count("doc-2"), "re-ingestion must not grow the namespace")
}

// TestIngest_ChunkIDStability: chunk IDs depend only on document identity
// and position.
func TestIngest_ChunkIDStability(t *testing.T) {
	assert.Equal(t, ChunkID("doc", 3), ChunkID("doc", 3))
	assert.NotEqual(t, ChunkID("doc", 3), ChunkID("doc", 4))
	assert.NotEqual(t, ChunkID("doc-a", 0), ChunkID("doc-b", 0))
}

// TestIngest_CleanupOnStoreFailure: a failed upsert tears the namespace
// down so no partial chunk set becomes queryable.
func TestIngest_CleanupOnStoreFailure(t *testing.T) {
	idx := &failingIndex{}
	p := newPipeline(idx)

	_, err := p.Ingest(context.Background(), chapterDoc("doc-3"))
	require.Error(t, err)
	assert.True(t, idx.deleted, "failed ingestion must delete the namespace")
}

// TestIngest_EmptyDocument propagates the parser's fatal error.
func TestIngest_EmptyDocument(t *testing.T) {
	p := newPipeline(index.NewMemoryIndex())
	_, err := p.Ingest(context.Background(), &document.Document{ID: "empty"})
	assert.ErrorIs(t, err, parser.ErrEmptyDocument)
}

// TestIngest_EmptySectionWarning: a section with no tokens and no tables is
// recorded in stats, not fatal.
func TestIngest_EmptySectionWarning(t *testing.T) {
	toc := "Contents\n" +
		"1. Alpha Section .......... 2\n" +
		"2. Beta Section .......... 4\n" +
		"3. Gamma Section .......... 6\n"
	doc := &document.Document{
		ID: "doc-4",
		Pages: []document.Page{
			{Number: 1, Text: toc},
			{Number: 2, Text: "Alpha body text with enough words to form a chunk."},
			{Number: 3, Text: "More alpha prose continues on this page."},
			{Number: 4, Text: ""}, // Beta's pages carry no extractable text
			{Number: 5, Text: ""},
			{Number: 6, Text: "Gamma body text closing out the document."},
			{Number: 7, Text: "Final page of gamma content."},
		},
	}

	idx := index.NewMemoryIndex()
	p := newPipeline(idx)
	result, err := p.Ingest(context.Background(), doc)
	require.NoError(t, err)

	assert.Greater(t, result.ChunkCount, 0)
	assert.NotEmpty(t, result.EmptySections)
	assert.Equal(t, result.ChunkCount, idx.Count("doc-4"))
}

// TestIngest_Cancelled stops between stages.
func TestIngest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(index.NewMemoryIndex())
	_, err := p.Ingest(ctx, chapterDoc("doc-5"))
	assert.ErrorIs(t, err, context.Canceled)
}
