// Package extract converts uploaded documents to plain text ahead of
// chunking. Dispatch is by declared content type first, file extension
// second; unknown types are treated as plain text when they decode as
// UTF-8.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

// Kind identifies an extraction strategy.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindText     Kind = "text"
	KindCode     Kind = "code"
)

// codeExtensions are source files ingested verbatim for AST chunking.
var codeExtensions = map[string]bool{
	".dart": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".go": true, ".py": true, ".rb": true, ".rs": true, ".java": true,
	".kt": true, ".swift": true, ".c": true, ".h": true, ".cpp": true,
	".cs": true, ".php": true, ".sh": true, ".sql": true, ".yaml": true,
	".yml": true, ".toml": true, ".json": true,
}

// KindFor resolves the extraction strategy for a file. contentType may be
// empty; the extension decides then.
func KindFor(contentType, path string) Kind {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "application/pdf":
		return KindPDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX
	case "text/markdown":
		return KindMarkdown
	case "text/html":
		return KindHTML
	}

	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		return KindPDF
	case ext == ".docx":
		return KindDOCX
	case ext == ".md" || ext == ".markdown" || ext == ".mdx":
		return KindMarkdown
	case ext == ".html" || ext == ".htm":
		return KindHTML
	case codeExtensions[ext]:
		return KindCode
	default:
		return KindText
	}
}

// Supported reports whether a file would be accepted for ingestion.
func Supported(contentType, path string) bool {
	k := KindFor(contentType, path)
	if k != KindText {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".text" || ext == ""
}

// Extractor converts raw document bytes to plain text.
type Extractor struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract returns the plain text of data. The returned text feeds the
// chunker; for Markdown and source code it is the input unchanged.
func (e *Extractor) Extract(ctx context.Context, kind Kind, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch kind {
	case KindPDF:
		return e.extractPDF(path, data)
	case KindDOCX:
		return e.extractDOCX(path, data)
	case KindHTML:
		return e.extractHTML(path, data)
	case KindMarkdown, KindCode:
		return decodeText(path, data)
	case KindText:
		return decodeText(path, data)
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unsupported content kind %q", kind))
	}
}

// decodeText validates UTF-8 and strips a BOM and NUL bytes. Binary payloads
// masquerading as text are rejected.
func decodeText(path string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", errors.InvalidInput(fmt.Sprintf("%s is not valid UTF-8 text", filepath.Base(path)))
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", errors.InvalidInput(fmt.Sprintf("%s contains binary data", filepath.Base(path)))
	}
	return string(data), nil
}
