// Package main provides the docfunnel CLI: ingest documents into the vector
// index and run topic-scoped retrieval against them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docfunnel/internal/chunker"
	"github.com/bull/docfunnel/internal/config"
	"github.com/bull/docfunnel/internal/document"
	"github.com/bull/docfunnel/internal/embedding"
	"github.com/bull/docfunnel/internal/engine"
	"github.com/bull/docfunnel/internal/funnel"
	"github.com/bull/docfunnel/internal/index"
	"github.com/bull/docfunnel/internal/ingest"
	"github.com/bull/docfunnel/internal/parser"
	"github.com/bull/docfunnel/internal/rerank"
)

var (
	configPath string
	docID      string
	topic      string
	topK       int
)

var rootCmd = &cobra.Command{
	Use:   "docfunnel",
	Short: "Document structuring and retrieval engine",
	Long: `docfunnel turns unstructured documents into section-aware, queryable
knowledge bases: it detects document structure, chunks section text into
overlapping windows, embeds them into a vector index, and answers
topic-scoped queries through a dense-search / topic-filter / rerank funnel.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  RERANK_URL     Cross-encoder rerank endpoint (default: http://localhost:8090)
  OPENAI_API_KEY OpenAI API key for embeddings (required)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document into the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve the most relevant passages for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a document's records from the index",
	RunE:  runDelete,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "docfunnel.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&docID, "doc", "", "document identifier")

	queryCmd.Flags().StringVar(&topic, "topic", "", "section/topic hint for the coarse filter")
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "result count (default from config)")

	rootCmd.AddCommand(ingestCmd, queryCmd, deleteCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup builds the engine from configuration. The returned closer shuts
// down the Qdrant connection.
func setup(ctx context.Context) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	idx, err := index.NewQdrantIndex(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Dimension)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		idx.Close()
		return nil, nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		idx.Close()
		return nil, nil, nil, err
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.Embedding.BatchSize)

	scorer, err := rerank.NewClient(cfg.Rerank.BaseURL)
	if err != nil {
		idx.Close()
		return nil, nil, nil, err
	}

	logger := slog.Default()
	structParser := parser.New(parser.Options{}, logger)
	chk := chunker.New(chunker.Config{
		MaxTokens:         cfg.Chunker.MaxTokens,
		OverlapTokens:     cfg.Chunker.OverlapTokens,
		BoundaryTolerance: cfg.Chunker.BoundaryTolerance,
	})

	pipeline := ingest.NewPipeline(structParser, chk, embedder, idx, logger)
	fun := funnel.New(idx, embedder, scorer, funnel.Config{
		DefaultTopK:         cfg.Funnel.TopK,
		CandidateMultiplier: cfg.Funnel.CandidateMultiplier,
		MinTopicMatches:     cfg.Funnel.MinTopicMatches,
	}, logger)

	eng := engine.New(pipeline, fun, idx, logger)
	return eng, cfg, func() { idx.Close() }, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, cfg, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	filePath := args[0]
	id := docID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	opCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Embedding.TimeoutSecs)*time.Second)
	defer cancel()

	result, err := eng.Ingest(opCtx, id, f, filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Ingested %s (%d pages)\n", result.DocumentID, result.Pages)
	fmt.Printf("  Sections: %d\n", len(result.Sections))
	for _, s := range result.Sections {
		fmt.Printf("    %s (pages %d-%d)\n", s.Title, s.StartPage, s.EndPage)
	}
	fmt.Printf("  Chunks: %d (%d tables)\n", result.ChunkCount, result.TableCount)
	for _, title := range result.EmptySections {
		fmt.Printf("  Warning: section %q produced no chunks\n", title)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if docID == "" {
		return fmt.Errorf("--doc is required for query")
	}

	eng, cfg, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	opCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Rerank.TimeoutSecs)*time.Second)
	defer cancel()

	results, err := eng.Query(opCtx, docID, document.Query{
		Text:  strings.Join(args, " "),
		Topic: topic,
		TopK:  topK,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.4f] %s (pages %d-%d, %s)\n",
			i+1, r.Score, r.Chunk.Section, r.Chunk.StartPage, r.Chunk.EndPage, r.Chunk.Type)
		fmt.Printf("   %s\n", snippet(r.Chunk.Text, 200))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if docID == "" {
		return fmt.Errorf("--doc is required for delete")
	}

	eng, _, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	if err := eng.Delete(ctx, docID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", docID)
	return nil
}

func snippet(text string, max int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
