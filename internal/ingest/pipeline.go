// Package ingest orchestrates the write path: structural parsing, chunking,
// embedding and vector index storage for one document.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docfunnel/internal/chunker"
	"github.com/bull/docfunnel/internal/document"
	"github.com/bull/docfunnel/internal/index"
	"github.com/bull/docfunnel/internal/parser"
)

// Embedder converts chunk texts into vectors for storage.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result reports what one ingestion produced.
type Result struct {
	DocumentID string
	Pages      int
	Sections   []document.TOCEntry
	ChunkCount int
	TableCount int
	// EmptySections lists sections that produced zero chunks. Non-fatal;
	// ingestion proceeds with the remaining sections.
	EmptySections []string
	Duration      time.Duration
}

// Pipeline runs the four ingestion stages strictly in order. A document is
// queryable only after Ingest returns nil: any failure after records begin
// writing tears the namespace back down so readers never observe a partial
// chunk set.
type Pipeline struct {
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder Embedder
	idx      index.Index
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline from its stage components.
func NewPipeline(p *parser.Parser, c *chunker.Chunker, e Embedder, idx index.Index, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{parser: p, chunker: c, embedder: e, idx: idx, logger: logger}
}

// Ingest structures, chunks, embeds and stores one document. Re-ingesting
// the same document overwrites its previous records in place: chunk IDs are
// deterministic in (document ID, chunk index).
func (p *Pipeline) Ingest(ctx context.Context, doc *document.Document) (*Result, error) {
	start := time.Now()

	entries, sections, err := p.parser.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		DocumentID: doc.ID,
		Pages:      len(doc.Pages),
		Sections:   entries,
	}

	var chunks []document.Chunk
	for _, sec := range sections {
		secChunks := p.chunker.ChunkSection(doc.ID, sec, len(chunks))
		if len(secChunks) == 0 {
			p.logger.Warn("section produced no chunks", "document", doc.ID, "section", sec.Title)
			result.EmptySections = append(result.EmptySections, sec.Title)
			continue
		}
		chunks = append(chunks, secChunks...)
	}
	for _, c := range chunks {
		if c.Type == document.ChunkTypeTable {
			result.TableCount++
		}
	}
	result.ChunkCount = len(chunks)

	if len(chunks) == 0 {
		result.Duration = time.Since(start)
		p.logger.Warn("document yielded no chunks", "document", doc.ID)
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]index.Record, len(chunks))
	for i, c := range chunks {
		records[i] = index.Record{
			ChunkID:    ChunkID(doc.ID, c.Index),
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Section:    c.Section,
			StartPage:  c.StartPage,
			EndPage:    c.EndPage,
			Type:       c.Type,
			Tokens:     c.Tokens,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}

	if err := p.idx.Upsert(ctx, doc.ID, records); err != nil {
		// A partially written namespace must not become visible; tear it
		// down and report the ingestion as failed.
		if delErr := p.idx.Delete(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			p.logger.Error("cleanup after failed upsert also failed",
				"document", doc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"document", doc.ID,
		"sections", len(entries),
		"chunks", result.ChunkCount,
		"tables", result.TableCount,
		"duration", result.Duration,
	)
	return result, nil
}

// ChunkID derives the stable point ID for a chunk from its identity
// (document ID, sequential index).
func ChunkID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s/%d", documentID, chunkIndex)).String()
}
