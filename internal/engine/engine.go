// Package engine is the surface exposed to orchestration layers: ingest a
// document, query it, delete it. Everything behind it is wired at
// construction time.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bull/docfunnel/internal/document"
	"github.com/bull/docfunnel/internal/extract"
	"github.com/bull/docfunnel/internal/funnel"
	"github.com/bull/docfunnel/internal/index"
	"github.com/bull/docfunnel/internal/ingest"
)

// Engine ties the ingestion pipeline and the retrieval funnel to one shared
// vector index. Concurrent operations on different documents are fully
// independent; the index provides namespace isolation.
type Engine struct {
	pipeline *ingest.Pipeline
	funnel   *funnel.Funnel
	idx      index.Index
	logger   *slog.Logger
}

// New creates an Engine.
func New(pipeline *ingest.Pipeline, f *funnel.Funnel, idx index.Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pipeline: pipeline, funnel: f, idx: idx, logger: logger}
}

// Ingest extracts, structures, chunks, embeds and stores one document read
// from r. The extractor is chosen by the file name's extension. The document
// is queryable only after Ingest returns nil.
func (e *Engine) Ingest(ctx context.Context, documentID string, r io.Reader, fileName string) (*ingest.Result, error) {
	extractor, err := extract.ForFile(fileName)
	if err != nil {
		return nil, err
	}

	pages, err := extractor.Extract(r, fileName)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", fileName, err)
	}

	doc := &document.Document{
		ID:    documentID,
		Name:  strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)),
		Pages: pages,
	}
	return e.pipeline.Ingest(ctx, doc)
}

// Query runs the retrieval funnel against one document's namespace.
func (e *Engine) Query(ctx context.Context, documentID string, q document.Query) ([]document.ScoredChunk, error) {
	return e.funnel.Retrieve(ctx, documentID, q)
}

// Delete removes every stored record for the document.
func (e *Engine) Delete(ctx context.Context, documentID string) error {
	if err := e.idx.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	e.logger.Info("document deleted", "document", documentID)
	return nil
}
