// Package parser infers document structure: it detects a table of contents
// and maps every section to an inclusive page range.
//
// Detection is heuristic pattern matching, not a state machine. Strategies
// run in a fixed order and the first one that succeeds wins:
//
//  1. explicit TOC page ("Contents" heading followed by title...page lines)
//  2. heading scan across all pages
//  3. single-section fallback covering the whole document
//
// Whatever strategy wins, the resulting sections always partition the page
// range exactly: no gaps, no overlaps, union = all pages.
package parser

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/bull/docfunnel/internal/document"
)

// ErrEmptyDocument reports an ingestion input with zero extractable pages.
var ErrEmptyDocument = errors.New("document has no extractable pages")

// FallbackTitle names the single section when no structure is detected and
// the document carries no usable name.
const FallbackTitle = "Full Document"

// Options holds the heading-pattern thresholds. They are heuristic tuning
// knobs validated against representative documents, not derived constants.
type Options struct {
	MinTOCEntries  int // explicit TOC accepted with at least this many entries
	HeadingMinLen  int // shortest line considered a heading
	HeadingMaxLen  int // longest line considered a heading
	MaxHeadings    int // heading scan stops after this many matches
	TOCScanPageCap int // never scan more than this many pages for a TOC
}

// DefaultOptions returns the thresholds used in production.
func DefaultOptions() Options {
	return Options{
		MinTOCEntries:  2,
		HeadingMinLen:  8,
		HeadingMaxLen:  100,
		MaxHeadings:    20,
		TOCScanPageCap: 20,
	}
}

// Parser detects document structure from extracted pages.
type Parser struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Parser. Zero-valued option fields fall back to defaults.
func New(opts Options, logger *slog.Logger) *Parser {
	def := DefaultOptions()
	if opts.MinTOCEntries <= 0 {
		opts.MinTOCEntries = def.MinTOCEntries
	}
	if opts.HeadingMinLen <= 0 {
		opts.HeadingMinLen = def.HeadingMinLen
	}
	if opts.HeadingMaxLen <= 0 {
		opts.HeadingMaxLen = def.HeadingMaxLen
	}
	if opts.MaxHeadings <= 0 {
		opts.MaxHeadings = def.MaxHeadings
	}
	if opts.TOCScanPageCap <= 0 {
		opts.TOCScanPageCap = def.TOCScanPageCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{opts: opts, logger: logger}
}

// Parse detects the table of contents for doc and derives its sections.
// Input pages are never mutated. Detection failures degrade silently to the
// next strategy; only an empty document is an error.
func (p *Parser) Parse(doc *document.Document) ([]document.TOCEntry, []document.Section, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	entries := p.detect(doc)
	entries = normalizeEntries(entries, len(doc.Pages))
	sections := buildSections(doc, entries)

	p.logger.Info("parsed document structure",
		"document", doc.ID,
		"pages", len(doc.Pages),
		"sections", len(entries),
	)
	return entries, sections, nil
}

// detect runs the detection strategies in order and returns the first
// non-empty result, falling back to a single whole-document section.
func (p *Parser) detect(doc *document.Document) []document.TOCEntry {
	strategies := []struct {
		name string
		fn   func([]document.Page) []document.TOCEntry
	}{
		{"explicit-toc", p.explicitTOC},
		{"heading-scan", p.headingScan},
	}

	for _, s := range strategies {
		if entries := s.fn(doc.Pages); len(entries) >= p.opts.MinTOCEntries {
			p.logger.Debug("toc strategy succeeded", "strategy", s.name, "entries", len(entries))
			return entries
		}
	}

	title := doc.Name
	if title == "" {
		title = FallbackTitle
	}
	return []document.TOCEntry{{Title: title, StartPage: 1, EndPage: len(doc.Pages)}}
}

var (
	numberedLineRe = regexp.MustCompile(`^\s*(?:[Cc]hapter\s+)?\d+[\.:)]`)
	tocLineRe      = regexp.MustCompile(`^(.+?)[\s.]{2,}(\d{1,4})$`)
	chapterRe      = regexp.MustCompile(`^[Cc]hapter\s+(\d+)[:.]?\s*(.*)$`)
	numberedRe     = regexp.MustCompile(`^(\d+(?:\.\d+)?)[.)]?\s+([A-Z][A-Za-z ]{3,60})$`)
)

// explicitTOC looks for a contents page among the early pages and parses its
// lines as <title> ... <page> pairs. Accepted only when enough entries parse
// with strictly increasing page numbers.
func (p *Parser) explicitTOC(pages []document.Page) []document.TOCEntry {
	idx := p.findTOCPage(pages)
	if idx < 0 {
		return nil
	}

	lastPage := len(pages)
	var entries []document.TOCEntry
	prev := 0

	for _, raw := range strings.Split(pages[idx].Text, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) < p.opts.HeadingMinLen || isContentsMarker(line) {
			continue
		}
		m := tocLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimRight(strings.TrimSpace(m[1]), " .")
		page, err := strconv.Atoi(m[2])
		if err != nil || len(title) < 4 {
			continue
		}
		// Strictly increasing pages within the document range.
		if page <= prev || page > lastPage {
			continue
		}
		entries = append(entries, document.TOCEntry{Title: title, StartPage: page})
		prev = page
	}

	if len(entries) < p.opts.MinTOCEntries {
		return nil
	}
	return entries
}

// findTOCPage returns the index of the page most likely holding an explicit
// table of contents, or -1. A page qualifies with five numbered lines, or a
// "contents" marker near the top plus three numbered lines.
func (p *Parser) findTOCPage(pages []document.Page) int {
	scanLimit := len(pages) / 7
	if scanLimit < 10 {
		scanLimit = 10
	}
	if scanLimit > p.opts.TOCScanPageCap {
		scanLimit = p.opts.TOCScanPageCap
	}
	if scanLimit > len(pages) {
		scanLimit = len(pages)
	}

	for i := 0; i < scanLimit; i++ {
		text := pages[i].Text
		if text == "" {
			continue
		}

		head := strings.ToLower(text)
		if len(head) > 300 {
			head = head[:300]
		}
		hasMarker := strings.Contains(head, "contents")

		numbered := 0
		for _, line := range strings.Split(text, "\n") {
			if numberedLineRe.MatchString(strings.TrimSpace(line)) {
				numbered++
			}
		}

		if numbered >= 5 || (hasMarker && numbered >= 3) {
			return i
		}
	}
	return -1
}

// headingScan walks every page for lines that look like section headings:
// "Chapter N", numbered prefixes, or short title lines without sentence
// punctuation. Each match becomes an entry at the page it appears on.
func (p *Parser) headingScan(pages []document.Page) []document.TOCEntry {
	var entries []document.TOCEntry
	seenTitles := make(map[string]bool)
	seenNums := make(map[string]bool)

	for _, page := range pages {
		lines := strings.Split(page.Text, "\n")
		for i, raw := range lines {
			line := strings.TrimSpace(raw)
			if len(line) < p.opts.HeadingMinLen || len(line) > p.opts.HeadingMaxLen {
				continue
			}

			title, num := p.matchHeading(line, lines, i)
			if title == "" || seenTitles[title] {
				continue
			}
			// A repeated section number after enough headings means we have
			// left the front matter and are re-reading body references.
			if num != "" && seenNums[num] && len(entries) >= 5 {
				return entries
			}
			if num != "" {
				seenNums[num] = true
			}
			seenTitles[title] = true
			entries = append(entries, document.TOCEntry{Title: title, StartPage: page.Number})
			if len(entries) >= p.opts.MaxHeadings {
				return entries
			}
		}
	}

	if len(entries) < p.opts.MinTOCEntries {
		return nil
	}
	return entries
}

// matchHeading classifies a single line. It returns the heading title and
// the leading section number (empty when the pattern carries none).
func (p *Parser) matchHeading(line string, lines []string, i int) (title, num string) {
	if m := chapterRe.FindStringSubmatch(line); m != nil {
		if m[2] != "" {
			return "Chapter " + m[1] + ": " + strings.TrimSpace(m[2]), m[1]
		}
		return "Chapter " + m[1], m[1]
	}

	if m := numberedRe.FindStringSubmatch(line); m != nil {
		t := strings.TrimSpace(m[2])
		// A heading is followed by body text starting a new sentence, not a
		// lowercase continuation of the same line.
		if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && startsLower(next) {
				return "", ""
			}
		}
		return m[1] + " " + t, strings.SplitN(m[1], ".", 2)[0]
	}

	// Short all-caps line, no terminal punctuation.
	if line == strings.ToUpper(line) && strings.IndexFunc(line, isLetter) >= 0 &&
		!endsSentence(line) && !isContentsMarker(line) {
		return line, ""
	}

	return "", ""
}

func isContentsMarker(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	return l == "contents" || l == "table of contents" || l == "table of content"
}

func startsLower(s string) bool {
	return s != "" && s[0] >= 'a' && s[0] <= 'z'
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, ":")
}

func isLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}
