// Package watcher follows a directory tree and reports file changes
// for live re-ingestion. Events are debounced so editor save bursts
// and build output churn collapse into single batches.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/synthesis-kb/synthesis/internal/extract"
	"github.com/synthesis-kb/synthesis/internal/gitignore"
)

// Operation classifies a file change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change.
type FileEvent struct {
	// Path is relative to the watch root, slash-separated.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces events per path (default 200ms).
	DebounceWindow time.Duration
	// EventBufferSize bounds the batch channel (default 100).
	EventBufferSize int
	// IgnorePatterns are gitignore-style patterns skipped in addition
	// to the standard excluded directories.
	IgnorePatterns []string
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 100
	}
	return o
}

// excludedDirs are never watched; they churn constantly and never
// contain ingestable sources.
var excludedDirs = map[string]bool{
	".git":         true,
	".synthesis":   true,
	".dart_tool":   true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"target":       true,
}

// Watcher streams debounced file events for a directory tree.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	ignore    *gitignore.Matcher
	events    chan []FileEvent
	errors    chan error
	opts      Options

	root    string
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New creates a watcher. Start must be called before events flow.
func New(opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ignore := gitignore.New()
	for _, p := range opts.IgnorePatterns {
		ignore.AddPattern(p)
	}

	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		ignore:    ignore,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		opts:      opts,
		done:      make(chan struct{}),
	}, nil
}

// Start watches root recursively until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", absRoot)
	}
	w.root = absRoot

	gi := filepath.Join(absRoot, ".gitignore")
	if _, err := os.Stat(gi); err == nil {
		_ = w.ignore.AddFromFile(gi, "")
	}

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	go w.loop(ctx)
	go w.forward(ctx)
	return nil
}

// Events returns the debounced batch channel. It closes on Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors. It closes on Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	err := w.fsw.Close()
	w.debouncer.Stop()
	return err
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." {
			if excludedDirs[d.Name()] || w.ignore.Match(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}

// loop translates fsnotify events into debounced FileEvents. It owns
// the errors channel and closes it on exit.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.errors)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		// New directories must be added to the watch set; fsnotify
		// watches are not recursive.
		if ev.Op&fsnotify.Create != 0 {
			name := filepath.Base(ev.Name)
			if !excludedDirs[name] && !w.ignore.Match(rel, true) {
				_ = w.addRecursive(ev.Name)
			}
		}
		return
	}

	if w.ignore.Match(rel, false) {
		return
	}
	if !extract.Supported("", rel) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// forward moves debounced batches to the public channel. It owns the
// events channel and closes it on exit.
func (w *Watcher) forward(ctx context.Context) {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			select {
			case w.events <- batch:
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
