package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock guards a data directory against concurrent writers. Two
// server instances sharing one SQLite database and blob root would
// corrupt the lexical index, so the serving process holds this lock
// for its lifetime.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given data directory. The lock
// file lives at <dir>/.synthesis.lock.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, ".synthesis.lock")
	return &DirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryAcquire attempts the exclusive lock without blocking. It returns
// false when another process holds the directory.
func (l *DirLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Release drops the lock. Safe to call on an unheld lock.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *DirLock) Path() string { return l.path }
