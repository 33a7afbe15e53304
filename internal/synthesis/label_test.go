package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigramLabel_DensestTrigram(t *testing.T) {
	texts := []string{
		"Use provider state management to share state.",
		"Provider state management keeps widgets rebuildable.",
		"Most teams pick provider state management for small apps.",
	}
	assert.Equal(t, "provider state management", trigramLabel(texts))
}

func TestTrigramLabel_RequiresRepeat(t *testing.T) {
	assert.Empty(t, trigramLabel([]string{"every trigram appears exactly once here"}))
}

func TestTrigramLabel_SkipsAllStopwords(t *testing.T) {
	texts := []string{
		"you can use riverpod for state",
		"you can use riverpod for state",
	}
	// "you can use" repeats but is all stopwords; the label must carry
	// a content word.
	label := trigramLabel(texts)
	assert.NotEqual(t, "you can use", label)
	assert.Contains(t, label, "riverpod")
}

func TestTrigramLabel_Empty(t *testing.T) {
	assert.Empty(t, trigramLabel(nil))
	assert.Empty(t, trigramLabel([]string{"", "short"}))
}

func TestExtractiveSummary_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "Keep it simple.", extractiveSummary("Keep it simple.", 100))
}

func TestExtractiveSummary_CutsAtSentence(t *testing.T) {
	text := "First sentence here. Second sentence follows. " +
		"Third sentence is much longer and pushes past the limit for sure."
	got := extractiveSummary(text, 50)
	assert.Equal(t, "First sentence here. Second sentence follows.", got)
}

func TestExtractiveSummary_CollapsesWhitespace(t *testing.T) {
	got := extractiveSummary("one\n\ntwo\t three", 100)
	assert.Equal(t, "one two three", got)
}

func TestExtractiveSummary_NoSentenceBoundary(t *testing.T) {
	text := "wordswithoutanyboundary another more words keep going and going past the cut"
	got := extractiveSummary(text, 40)
	assert.LessOrEqual(t, len(got), 44)
	assert.Contains(t, got, "…")
}
