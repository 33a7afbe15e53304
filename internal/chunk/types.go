// Package chunk splits extracted document text and source code into
// retrievable units. Text and Markdown use a token-budget strategy with
// overlap; Dart and the TypeScript/JavaScript family use an AST strategy
// that emits one chunk per declaration.
package chunk

import "context"

// Token estimation constants. A token is approximated as four characters,
// which tracks closely enough for budget enforcement across the supported
// embedding providers.
const (
	DefaultMaxTokens     = 800
	DefaultOverlapTokens = 150
	TokensPerChar        = 4

	// DefaultCodeMaxChunkLines is the class size above which classes are
	// split into per-method chunks.
	DefaultCodeMaxChunkLines = 100
)

// Options configures a Splitter.
type Options struct {
	MaxTokens         int  // token budget per text chunk
	OverlapTokens     int  // overlap between consecutive text chunks
	CodeChunking      bool // AST strategy for recognised source extensions
	PreserveImports   bool // prepend the file's import block to code chunks
	CodeMaxChunkLines int  // class line count above which classes split per method
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.OverlapTokens < 0 || o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = DefaultOverlapTokens
	}
	if o.CodeMaxChunkLines <= 0 {
		o.CodeMaxChunkLines = DefaultCodeMaxChunkLines
	}
	return o
}

// Chunk is one retrievable unit of a document.
type Chunk struct {
	Content   string
	Language  string // "dart", "typescript", ...; empty for prose
	StartLine int    // 1-indexed, inclusive
	EndLine   int    // inclusive
	Metadata  map[string]string
}

// FileInput is a single file handed to the splitter. Path is used for
// strategy dispatch and relationship resolution only; Content must already
// be extracted plain text for non-source documents.
type FileInput struct {
	Path    string
	Content []byte
}

// Result is the outcome of splitting one file. Parsed is non-nil only when
// the AST strategy ran, and carries the structure used to derive file
// relationships.
type Result struct {
	Chunks []*Chunk
	Parsed *ParsedFile
}

// Splitter is the strategy dispatcher.
type Splitter interface {
	Split(ctx context.Context, file *FileInput) (*Result, error)
	Close()
}

// Import is a single import/export directive found in a source file.
type Import struct {
	Target string // the quoted import target as written
	Line   int
}

// Function is a top-level function or a class method.
type Function struct {
	Name       string
	Params     string // source text between the parameter parentheses
	ReturnType string
	Static     bool
	Async      bool
	StartLine  int
	EndLine    int
	DocComment string
	Source     string // full source slice including doc comment
}

// Property is a field declared on a class.
type Property struct {
	Name string
	Line int
}

// Class is a class, mixin, or enum declaration with its members.
type Class struct {
	Name       string
	Kind       string // "class", "mixin", "enum", "extension"
	StartLine  int
	EndLine    int
	DocComment string
	Source     string
	Methods    []Function
	Properties []Property
}

// Constant is a top-level const or final declaration.
type Constant struct {
	Name      string
	StartLine int
	EndLine   int
	Source    string
}

// ParsedFile is the intermediate structure produced by the AST strategy.
type ParsedFile struct {
	Path      string
	Language  string
	Imports   []Import
	Parts     []string // Dart `part '...'` targets
	PartOf    string   // Dart `part of` target, if any
	Functions []Function
	Classes   []Class
	Constants []Constant
}

// estimateTokens approximates token count from byte length.
func estimateTokens(s string) int {
	n := len(s) / TokensPerChar
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}
