// Package scanner discovers ingestable files under a directory tree.
// It respects .gitignore rules, skips binaries and build output, and
// only reports files the extraction pipeline can handle.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/synthesis-kb/synthesis/internal/extract"
	"github.com/synthesis-kb/synthesis/internal/gitignore"
)

// DefaultMaxFileSize caps a single discovered file (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// defaultExcludedDirs never yield ingestable documentation or source.
var defaultExcludedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".synthesis":   true,
	".dart_tool":   true,
	".idea":        true,
	".vscode":      true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"vendor":       true,
	"__pycache__":  true,
}

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is relative to the scan root, slash-separated.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Result streams either a file or a walk error.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// Root is the directory to walk.
	Root string
	// ExcludePatterns are gitignore-style patterns applied on top of
	// any .gitignore files.
	ExcludePatterns []string
	// RespectGitignore loads .gitignore files found during the walk.
	RespectGitignore bool
	// MaxFileSize skips larger files (default 10MB).
	MaxFileSize int64
	// FollowSymlinks includes symlinked files. Off by default so a
	// link cycle cannot wedge the walk.
	FollowSymlinks bool
}

// Scanner discovers files for directory ingestion.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks the root and streams supported files on the returned
// channel. The channel closes when the walk finishes or ctx is done.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	matcher := gitignore.New()
	for _, p := range opts.ExcludePatterns {
		matcher.AddPattern(p)
	}
	if opts.RespectGitignore {
		rootIgnore := filepath.Join(absRoot, ".gitignore")
		if _, statErr := os.Stat(rootIgnore); statErr == nil {
			_ = matcher.AddFromFile(rootIgnore, "")
		}
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, matcher, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, maxSize int64, matcher *gitignore.Matcher, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if defaultExcludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			if matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			if opts.RespectGitignore {
				ignoreFile := filepath.Join(path, ".gitignore")
				if _, statErr := os.Stat(ignoreFile); statErr == nil {
					// Rules apply below the directory that declares them.
					_ = matcher.AddFromFile(ignoreFile, relPath)
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if matcher.Match(relPath, false) {
			return nil
		}
		if !extract.Supported("", relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		fi := &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		select {
		case results <- Result{File: fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

// isBinary sniffs the first 512 bytes for a NUL byte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
