package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextChunker_ShortContentSingleChunk(t *testing.T) {
	c := newTextChunker(Options{}.withDefaults())

	chunks := c.chunk("A single short paragraph that fits in one chunk.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A single short paragraph that fits in one chunk.", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, "text", chunks[0].Metadata["type"])
}

func TestTextChunker_EmptyContent(t *testing.T) {
	c := newTextChunker(Options{}.withDefaults())

	assert.Nil(t, c.chunk(""))
	assert.Nil(t, c.chunk("   \n\n  \t"))
}

func TestTextChunker_RespectsParagraphBoundaries(t *testing.T) {
	// Two paragraphs where the budget lands mid-second-paragraph; the split
	// should land on the blank line between them.
	c := newTextChunker(Options{MaxTokens: 30, OverlapTokens: 0}.withDefaults())
	para1 := strings.Repeat("alpha beta gamma. ", 5)
	para2 := strings.Repeat("delta epsilon zeta. ", 5)
	content := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	chunks := c.chunk(content)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.NotContains(t, chunks[0].Content, "delta")
}

func TestTextChunker_OverlapCarriesContext(t *testing.T) {
	c := newTextChunker(Options{MaxTokens: 25, OverlapTokens: 10})

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("sentence number ends here. ")
	}
	chunks := c.chunk(b.String())
	require.Greater(t, len(chunks), 1)

	// Each inner boundary should repeat some trailing text of the previous
	// chunk at the start of the next.
	prevTail := chunks[0].Content[len(chunks[0].Content)-10:]
	assert.Contains(t, chunks[1].Content, strings.TrimSpace(prevTail)[:4])
}

func TestTextChunker_NeverSplitsRunes(t *testing.T) {
	c := newTextChunker(Options{MaxTokens: 10, OverlapTokens: 2})

	content := strings.Repeat("héllo wörld ünïcode ", 30)
	for _, ck := range c.chunk(content) {
		assert.True(t, utf8.ValidString(ck.Content), "chunk content must remain valid UTF-8")
	}
}

func TestTextChunker_LineNumbers(t *testing.T) {
	c := newTextChunker(Options{MaxTokens: 10, OverlapTokens: 0})

	content := "line one is here\nline two is here\n\nline four is here\nline five is here\n"
	chunks := c.chunk(content)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	last := chunks[len(chunks)-1]
	assert.GreaterOrEqual(t, last.EndLine, last.StartLine)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("a", 100)))
}
