package chunk

import (
	"strings"
	"unicode/utf8"
)

// textChunker splits prose over a token budget with overlap, preferring
// paragraph and sentence boundaries and never cutting inside a UTF-8 rune.
type textChunker struct {
	maxTokens     int
	overlapTokens int
}

func newTextChunker(opts Options) *textChunker {
	return &textChunker{maxTokens: opts.MaxTokens, overlapTokens: opts.OverlapTokens}
}

func (c *textChunker) chunk(content string) []*Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	budget := c.maxTokens * TokensPerChar
	overlap := c.overlapTokens * TokensPerChar

	var chunks []*Chunk
	pos := 0
	for pos < len(content) {
		end := pos + budget
		if end >= len(content) {
			end = len(content)
		} else {
			end = c.cutPoint(content, pos, end)
		}

		piece := content[pos:end]
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, &Chunk{
				Content:   strings.TrimSpace(piece),
				StartLine: lineAt(content, pos),
				EndLine:   lineAt(content, end-1),
				Metadata:  map[string]string{"type": "text"},
			})
		}
		if end >= len(content) {
			break
		}

		next := end - overlap
		if next <= pos {
			next = end
		}
		// Overlap start must also land on a rune boundary.
		for next > 0 && next < len(content) && !utf8.RuneStart(content[next]) {
			next--
		}
		pos = next
	}
	return chunks
}

// cutPoint picks the best split position at or before limit: the last blank
// line, then the last sentence end, then the last whitespace, then the rune
// boundary at limit.
func (c *textChunker) cutPoint(content string, start, limit int) int {
	for limit > start && !utf8.RuneStart(content[limit]) {
		limit--
	}
	window := content[start:limit]

	// Don't accept a boundary so early that the chunk degenerates; require
	// at least half the budget.
	minCut := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > minCut {
		return start + i + 2
	}
	if i := lastSentenceEnd(window); i > minCut {
		return start + i
	}
	if i := strings.LastIndexAny(window, " \t\n"); i > minCut {
		return start + i + 1
	}
	return limit
}

// lastSentenceEnd returns the index just past the last ". ", "! ", "? " or
// sentence-ending newline in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for i := len(s) - 2; i >= 0; i-- {
		ch := s[i]
		if (ch == '.' || ch == '!' || ch == '?') && (s[i+1] == ' ' || s[i+1] == '\n') {
			best = i + 2
			break
		}
	}
	return best
}

// lineAt returns the 1-indexed line number containing byte offset pos.
func lineAt(content string, pos int) int {
	if pos < 0 {
		pos = 0
	}
	if pos > len(content) {
		pos = len(content)
	}
	return strings.Count(content[:pos], "\n") + 1
}
