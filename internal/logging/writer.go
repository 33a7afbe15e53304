package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingWriter appends to a log file and rotates it once it
// crosses the size limit. Rotated files get numeric suffixes:
// server.log.1 is the newest, server.log.<maxFiles> the oldest.
type RotatingWriter struct {
	path  string
	limit int64
	keep  int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewRotatingWriter opens (or creates) the log file, creating parent
// directories as needed.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:  path,
		limit: int64(maxSizeMB) << 20,
		keep:  maxFiles,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if it would push the file over the
// limit. Each write is fsynced so `synthesis logs -f` sees lines as
// they land.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			// A failed rotation must not lose records; keep appending.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	if err == nil {
		_ = w.f.Sync()
	}
	return n, err
}

// rotate shifts every suffix up by one, dropping the file at the keep
// limit, and reopens a fresh active file.
func (w *RotatingWriter) rotate() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		w.f = nil
	}

	_ = os.Remove(w.suffixed(w.keep))
	for n := w.keep - 1; n >= 1; n-- {
		old := w.suffixed(n)
		if _, err := os.Stat(old); err == nil {
			_ = os.Rename(old, w.suffixed(n+1))
		}
	}
	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.suffixed(1)); err != nil {
			return fmt.Errorf("rotate log file: %w", err)
		}
	}

	w.size = 0
	return w.open()
}

func (w *RotatingWriter) suffixed(n int) string {
	return w.path + "." + strconv.Itoa(n)
}

// Sync flushes the active file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close closes the active file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}
