package chunker

import (
	"strings"
	"unicode"
)

// token records the byte range of one whitespace-delimited token, so chunks
// are exact substrings of the section text.
type token struct {
	start int
	end   int
}

// tokenize splits text on whitespace, keeping byte offsets. Whitespace-based
// counting is intentionally rough: chunking needs determinism, not exact
// model tokenization.
func tokenize(text string) []token {
	var toks []token
	inTok := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inTok {
				toks = append(toks, token{start: start, end: i})
				inTok = false
			}
			continue
		}
		if !inTok {
			start = i
			inTok = true
		}
	}
	if inTok {
		toks = append(toks, token{start: start, end: len(text)})
	}
	return toks
}

// CountTokens returns the whitespace token count of text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// endsWithTerminator reports whether a token closes a sentence. Trailing
// quotes and brackets after the terminator still count.
func endsWithTerminator(word string) bool {
	trimmed := strings.TrimRight(word, `"')]`)
	return strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?")
}

// hasParagraphBreak reports whether the gap between two tokens contains a
// blank line.
func hasParagraphBreak(gap string) bool {
	newlines := 0
	for _, r := range gap {
		if r == '\n' {
			newlines++
			if newlines >= 2 {
				return true
			}
		}
	}
	return false
}
