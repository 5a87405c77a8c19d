package parser

import (
	"strings"

	"github.com/bull/docfunnel/internal/document"
)

// normalizeEntries forces the entries into an exact partition of the page
// range 1..lastPage:
//
//   - entries whose page does not advance past the previous entry are
//     discarded (overlapping raw heading matches)
//   - the first entry is extended back to page 1 (front matter belongs to
//     the first section)
//   - end pages are filled from the next entry's start page minus one; the
//     final entry ends on the document's last page
//
// When heading matches collapse onto too few distinct pages to carry any
// ordering signal, pages are distributed evenly across the raw titles
// instead.
func normalizeEntries(entries []document.TOCEntry, lastPage int) []document.TOCEntry {
	if len(entries) == 0 {
		return nil
	}

	kept := make([]document.TOCEntry, 0, len(entries))
	prev := 0
	for _, e := range entries {
		if e.StartPage <= prev || e.StartPage > lastPage {
			continue
		}
		kept = append(kept, e)
		prev = e.StartPage
	}

	if len(kept) < 2 && len(entries) >= 2 {
		return distributeEvenly(entries, lastPage)
	}

	kept[0].StartPage = 1
	for i := range kept {
		if i+1 < len(kept) {
			kept[i].EndPage = kept[i+1].StartPage - 1
		} else {
			kept[i].EndPage = lastPage
		}
		if kept[i].EndPage < kept[i].StartPage {
			kept[i].EndPage = kept[i].StartPage
		}
	}
	return kept
}

// distributeEvenly assigns each title an equal share of the page range.
// Used when detected headings carry no usable page ordering. Titles beyond
// the page count are dropped so the partition invariant holds.
func distributeEvenly(entries []document.TOCEntry, lastPage int) []document.TOCEntry {
	n := len(entries)
	if n > lastPage {
		n = lastPage
	}
	perSection := lastPage / n

	out := make([]document.TOCEntry, n)
	for i := 0; i < n; i++ {
		out[i] = document.TOCEntry{
			Title:     entries[i].Title,
			StartPage: i*perSection + 1,
			EndPage:   (i + 1) * perSection,
		}
	}
	out[n-1].EndPage = lastPage
	return out
}

// buildSections materializes one Section per normalized entry: the
// concatenated text of its pages plus the tables extracted within its range.
func buildSections(doc *document.Document, entries []document.TOCEntry) []document.Section {
	sections := make([]document.Section, 0, len(entries))
	for _, e := range entries {
		var texts []string
		var tables []document.Table
		for _, page := range doc.Pages {
			if page.Number < e.StartPage || page.Number > e.EndPage {
				continue
			}
			if page.Text != "" {
				texts = append(texts, page.Text)
			}
			tables = append(tables, page.Tables...)
		}
		sections = append(sections, document.Section{
			Title:     e.Title,
			StartPage: e.StartPage,
			EndPage:   e.EndPage,
			Text:      strings.Join(texts, "\n\n"),
			Tables:    tables,
		})
	}
	return sections
}
