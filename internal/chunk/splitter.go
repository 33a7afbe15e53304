package chunk

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// splitter dispatches files to a strategy by extension. AST parse failures
// fall back to the text strategy with a warning; splitting never fails on
// malformed input.
type splitter struct {
	opts     Options
	text     *textChunker
	markdown *markdownChunker
	log      *slog.Logger
}

// NewSplitter builds the strategy dispatcher.
func NewSplitter(opts Options, log *slog.Logger) Splitter {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &splitter{
		opts:     opts,
		text:     newTextChunker(opts),
		markdown: newMarkdownChunker(opts),
		log:      log,
	}
}

func (s *splitter) Split(ctx context.Context, file *FileInput) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(file.Path))
	switch {
	case ext == ".md" || ext == ".markdown" || ext == ".mdx":
		return &Result{Chunks: s.markdown.chunk(string(file.Content))}, nil
	case s.opts.CodeChunking && ext == ".dart":
		pf, err := ParseDart(file.Path, file.Content)
		if err != nil {
			s.log.Warn("ast chunking failed, falling back to text",
				"path", file.Path, "error", err)
			return s.splitText(file)
		}
		return &Result{Chunks: buildCodeChunks(pf, s.opts), Parsed: pf}, nil
	case s.opts.CodeChunking && isTSJSExt(ext):
		pf, err := ParseTSJS(ctx, file.Path, ext, file.Content)
		if err != nil {
			s.log.Warn("ast chunking failed, falling back to text",
				"path", file.Path, "error", err)
			return s.splitText(file)
		}
		return &Result{Chunks: buildCodeChunks(pf, s.opts), Parsed: pf}, nil
	default:
		return s.splitText(file)
	}
}

func (s *splitter) splitText(file *FileInput) (*Result, error) {
	return &Result{Chunks: s.text.chunk(string(file.Content))}, nil
}

func (s *splitter) Close() {}

func isTSJSExt(ext string) bool {
	switch ext {
	case ".ts", ".tsx", ".js", ".jsx":
		return true
	}
	return false
}
