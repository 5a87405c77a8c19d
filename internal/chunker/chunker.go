// Package chunker splits section text into overlapping, sentence-aligned
// windows sized in tokens, and wraps extracted tables as standalone chunks.
package chunker

import (
	"github.com/bull/docfunnel/internal/document"
)

// Config controls the sliding window. Overlap must stay below MaxTokens and
// BoundaryTolerance below MaxTokens-Overlap, or the walk could stall; New
// clamps violations back to defaults.
type Config struct {
	MaxTokens         int // window size C
	OverlapTokens     int // overlap O between consecutive chunks
	BoundaryTolerance int // how far a cut may move to land on a sentence end
}

// DefaultConfig returns the production chunking parameters.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         200,
		OverlapTokens:     50,
		BoundaryTolerance: 30,
	}
}

// Chunker produces retrieval units from sections.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, repairing invalid configuration.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 4
	}
	if cfg.BoundaryTolerance < 0 || cfg.BoundaryTolerance >= cfg.MaxTokens-cfg.OverlapTokens {
		cfg.BoundaryTolerance = (cfg.MaxTokens - cfg.OverlapTokens) / 5
	}
	return &Chunker{cfg: cfg}
}

// ChunkSection splits one section into text chunks followed by one standalone
// chunk per extracted table. Chunk indexes start at startIndex and advance
// sequentially. A section with no tokens and no tables yields zero chunks;
// the caller records that as a warning, not a failure.
func (c *Chunker) ChunkSection(docID string, sec document.Section, startIndex int) []document.Chunk {
	var chunks []document.Chunk
	index := startIndex

	for _, win := range c.windows(sec.Text) {
		chunks = append(chunks, document.Chunk{
			DocumentID: docID,
			Index:      index,
			Section:    sec.Title,
			StartPage:  sec.StartPage,
			EndPage:    sec.EndPage,
			Tokens:     win.tokens,
			Type:       document.ChunkTypeText,
			Text:       win.text,
		})
		index++
	}

	// Tables are never merged with surrounding text and never split, even
	// when they exceed the window size.
	for _, tbl := range sec.Tables {
		text := tbl.Text()
		if text == "" {
			continue
		}
		chunks = append(chunks, document.Chunk{
			DocumentID: docID,
			Index:      index,
			Section:    sec.Title,
			StartPage:  tbl.Page,
			EndPage:    tbl.Page,
			Tokens:     CountTokens(text),
			Type:       document.ChunkTypeTable,
			Text:       text,
		})
		index++
	}

	return chunks
}

type window struct {
	text   string
	tokens int
}

// windows walks a sliding window of MaxTokens tokens with step
// MaxTokens-OverlapTokens. Each cut moves to the nearest sentence boundary
// within BoundaryTolerance; without one it falls at the raw token limit, so
// no chunk ever exceeds MaxTokens+BoundaryTolerance tokens.
func (c *Chunker) windows(text string) []window {
	toks := tokenize(text)
	if len(toks) == 0 {
		return nil
	}
	if len(toks) <= c.cfg.MaxTokens {
		return []window{{text: sliceText(text, toks, 0, len(toks)), tokens: len(toks)}}
	}

	var out []window
	start := 0
	for start < len(toks) {
		end := start + c.cfg.MaxTokens
		if end >= len(toks) {
			end = len(toks)
		} else {
			end = c.adjustCut(text, toks, start, end)
		}

		out = append(out, window{text: sliceText(text, toks, start, end), tokens: end - start})
		if end == len(toks) {
			break
		}

		next := end - c.cfg.OverlapTokens
		if next <= start {
			next = end // forward progress over overlap fidelity
		}
		start = next
	}
	return out
}

// adjustCut searches [cut-tol, cut+tol] for the sentence boundary nearest to
// the raw cut. A boundary after token i is a terminator suffix on the token
// or a paragraph break before the next token. Retraction wins distance ties.
func (c *Chunker) adjustCut(text string, toks []token, start, cut int) int {
	tol := c.cfg.BoundaryTolerance
	for d := 0; d <= tol; d++ {
		if k := cut - d; k > start && isBoundaryAfter(text, toks, k-1) {
			return k
		}
		if d == 0 {
			continue
		}
		if k := cut + d; k <= len(toks) && isBoundaryAfter(text, toks, k-1) {
			return k
		}
	}
	return cut
}

// isBoundaryAfter reports whether cutting after token i keeps the chunk
// sentence-aligned.
func isBoundaryAfter(text string, toks []token, i int) bool {
	word := text[toks[i].start:toks[i].end]
	if endsWithTerminator(word) {
		return true
	}
	if i+1 < len(toks) {
		return hasParagraphBreak(text[toks[i].end:toks[i+1].start])
	}
	return false
}

func sliceText(text string, toks []token, start, end int) string {
	return text[toks[start].start:toks[end-1].end]
}
