// Package funnel turns a query into a ranked, bounded passage set through
// three stages: dense vector search, a best-effort topic filter, and
// cross-encoder reranking.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bull/docfunnel/internal/document"
	"github.com/bull/docfunnel/internal/index"
)

var (
	// ErrRetrievalUnavailable reports an unreachable or timed-out retrieval
	// dependency. The funnel never falls back to unscored results: an
	// unranked set would silently break the ordering contract downstream
	// generation depends on.
	ErrRetrievalUnavailable = errors.New("retrieval dependency unavailable")

	// ErrEmbeddingTimeout reports that the embedding service exceeded the
	// caller's deadline. It matches ErrRetrievalUnavailable under errors.Is.
	ErrEmbeddingTimeout = fmt.Errorf("%w: embedding service timed out", ErrRetrievalUnavailable)
)

// Embedder converts query text into a vector comparable with stored chunk
// vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Scorer rates each candidate text against the query; higher is more
// relevant.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Config tunes the funnel.
type Config struct {
	// DefaultTopK is used when the query does not request a result count.
	DefaultTopK int
	// CandidateMultiplier sizes the dense-search over-fetch: stage 1 pulls
	// CandidateMultiplier * top_k candidates.
	CandidateMultiplier int
	// MinTopicMatches is the smallest filtered set the topic filter is
	// allowed to produce. Below it the filter is discarded entirely.
	MinTopicMatches int
}

// DefaultConfig returns the production funnel parameters.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:         5,
		CandidateMultiplier: 5,
		MinTopicMatches:     3,
	}
}

// Funnel orchestrates retrieval over one document's namespace.
type Funnel struct {
	idx      index.Index
	embedder Embedder
	scorer   Scorer
	cfg      Config
	logger   *slog.Logger
}

// New creates a Funnel. Zero-valued config fields fall back to defaults.
func New(idx index.Index, embedder Embedder, scorer Scorer, cfg Config, logger *slog.Logger) *Funnel {
	def := DefaultConfig()
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = def.CandidateMultiplier
	}
	if cfg.MinTopicMatches <= 0 {
		cfg.MinTopicMatches = def.MinTopicMatches
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Funnel{idx: idx, embedder: embedder, scorer: scorer, cfg: cfg, logger: logger}
}

// Retrieve runs the three-stage funnel and returns at most top_k passages in
// strictly non-increasing score order with no duplicate chunk IDs. A query
// that matches nothing returns an empty slice, not an error. Cancellation is
// honored between stages; a stage's blocking call runs to completion once
// issued.
func (f *Funnel) Retrieve(ctx context.Context, documentID string, q document.Query) ([]document.ScoredChunk, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = f.cfg.DefaultTopK
	}
	searchText := q.SearchText()

	// Stage 1: dense search over an enlarged candidate pool.
	vectors, err := f.embedder.Embed(ctx, []string{searchText})
	if err != nil {
		return nil, embedErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates, err := f.idx.Search(ctx, documentID, vectors[0], topK*f.cfg.CandidateMultiplier, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: vector index: %v", ErrRetrievalUnavailable, err)
	}
	candidates = dedupe(candidates)
	f.logger.Debug("dense search complete", "document", documentID, "candidates", len(candidates))
	if len(candidates) == 0 {
		return []document.ScoredChunk{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: coarse topic filter. Section titles are free text, so
	// precision is capped anyway; when the filter keeps too few candidates
	// we favor recall and keep the unfiltered set. Do not tighten this into
	// a strict filter: the funnel must never zero a non-empty candidate set
	// here.
	if q.Topic != "" {
		filtered := filterByTopic(candidates, q.Topic)
		if len(filtered) >= f.cfg.MinTopicMatches {
			candidates = filtered
			f.logger.Debug("topic filter applied", "topic", q.Topic, "kept", len(filtered))
		} else {
			f.logger.Debug("topic filter too restrictive, keeping all",
				"topic", q.Topic, "matches", len(filtered))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: cross-encoder rerank, stable so equal scores preserve the
	// dense-search order.
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Record.Text
	}
	scores, err := f.scorer.Score(ctx, searchText, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: rerank model: %v", ErrRetrievalUnavailable, err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: rerank model returned %d scores for %d candidates",
			ErrRetrievalUnavailable, len(scores), len(candidates))
	}

	ranked := make([]document.ScoredChunk, len(candidates))
	for i, c := range candidates {
		ranked[i] = document.ScoredChunk{Chunk: toChunk(c.Record), Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	f.logger.Info("retrieval complete",
		"document", documentID,
		"topic", q.Topic,
		"results", len(ranked),
	)
	return ranked, nil
}

// embedErr classifies an embedding failure: deadline overruns get the more
// specific timeout error, everything else the generic dependency failure.
func embedErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrEmbeddingTimeout, err)
	}
	return fmt.Errorf("%w: embedding service: %v", ErrRetrievalUnavailable, err)
}

// filterByTopic keeps candidates whose section title contains the topic,
// case-insensitively.
func filterByTopic(candidates []index.Scored, topic string) []index.Scored {
	needle := strings.ToLower(topic)
	var kept []index.Scored
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Record.Section), needle) {
			kept = append(kept, c)
		}
	}
	return kept
}

// dedupe drops repeated chunk IDs, keeping the first (highest-similarity)
// occurrence.
func dedupe(candidates []index.Scored) []index.Scored {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c.Record.ChunkID] {
			continue
		}
		seen[c.Record.ChunkID] = true
		out = append(out, c)
	}
	return out
}

func toChunk(rec index.Record) document.Chunk {
	return document.Chunk{
		DocumentID: rec.DocumentID,
		Index:      rec.ChunkIndex,
		Section:    rec.Section,
		StartPage:  rec.StartPage,
		EndPage:    rec.EndPage,
		Tokens:     rec.Tokens,
		Type:       rec.Type,
		Text:       rec.Text,
	}
}
