package embed

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ContentKind is the embedding route a document belongs to. Each kind
// maps to a provider tuned for that content.
type ContentKind string

const (
	// KindCode routes source files to a code-specialised model.
	KindCode ContentKind = "code"

	// KindWriting routes prose (essays, articles, creative text).
	KindWriting ContentKind = "writing"

	// KindDocumentation routes technical documentation (default).
	KindDocumentation ContentKind = "documentation"
)

// codeExtensions are file extensions classified as code without
// looking at content.
var codeExtensions = map[string]bool{
	".dart": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".go": true, ".py": true, ".rb": true, ".java": true, ".kt": true,
	".rs": true, ".c": true, ".cc": true, ".cpp": true, ".h": true,
	".hpp": true, ".cs": true, ".php": true, ".swift": true, ".scala": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true, ".json": true,
	".toml": true,
}

// Compiled patterns for content classification.
var (
	// Fenced code blocks and indented code in prose-format files
	codeFencePattern = regexp.MustCompile("(?m)^```")

	// Signals of technical documentation
	docKeywordPattern = regexp.MustCompile(`(?i)\b(api|endpoint|install|installation|usage|configuration|parameter|returns|argument|function|method|class|interface|deprecated|changelog|README)\b`)

	// Signals of personal or narrative writing
	writingKeywordPattern = regexp.MustCompile(`(?i)\b(i|my|me|we|our|felt|wrote|story|chapter|journey|yesterday|today i|thought about)\b`)
)

// ClassifyContent decides the embedding route for a document from its
// file name and content. Extensions win; prose formats are scored on
// keyword density.
func ClassifyContent(fileName, content string) ContentKind {
	ext := strings.ToLower(filepath.Ext(fileName))
	if codeExtensions[ext] {
		return KindCode
	}

	// Prose formats: decide between documentation and writing
	sample := content
	if len(sample) > 4000 {
		sample = sample[:4000]
	}

	// Fenced code blocks are a strong documentation signal
	if len(codeFencePattern.FindAllStringIndex(sample, 2)) >= 2 {
		return KindDocumentation
	}

	docHits := len(docKeywordPattern.FindAllStringIndex(sample, 20))
	writingHits := len(writingKeywordPattern.FindAllStringIndex(sample, 20))

	if writingHits > docHits*2 {
		return KindWriting
	}
	return KindDocumentation
}
