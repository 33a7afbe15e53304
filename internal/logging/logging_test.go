package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_WritesToFile(t *testing.T) {
	// Given a writer in a temp directory
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When a line is written
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	// Then the file contains it
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriter_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "logs", "server.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	// 1MB max size
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// Write more than 1MB
	line := strings.Repeat("x", 1024)
	for i := 0; i < 1100; i++ {
		_, err := w.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	// Then the rotated file exists and the active file restarted
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file should exist")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024))
}

func TestRotatingWriter_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	// Pre-create rotated files up to the limit
	require.NoError(t, os.WriteFile(path+".1", []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(path+".2", []byte("two"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// Force a rotation
	line := strings.Repeat("x", 1024)
	for i := 0; i < 1100; i++ {
		_, err := w.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	// Then .2 (the oldest at the limit) was deleted, not renamed to .3
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), ".3 should not exist with maxFiles=2")
}

func TestSetup_ProducesJSONLogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	logger, cleanup, err := Setup(Config{
		Level:         "debug",
		FilePath:      path,
		MaxSizeMB:     10,
		MaxFiles:      2,
		WriteToStderr: false,
	})
	require.NoError(t, err)

	logger.Info("ingest_complete", slog.String("document", "doc-1"), slog.Int("chunks", 12))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ingest_complete"`)
	assert.Contains(t, string(data), `"document":"doc-1"`)
	assert.Contains(t, string(data), `"chunks":12`)
}

func TestSetup_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	logger, cleanup, err := Setup(Config{
		Level:         "warn",
		FilePath:      path,
		MaxSizeMB:     10,
		MaxFiles:      2,
		WriteToStderr: false,
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func writeTestLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestViewer_TailReturnsLastN(t *testing.T) {
	path := writeTestLog(t,
		`{"time":"2026-01-01T10:00:00Z","level":"INFO","msg":"one"}`,
		`{"time":"2026-01-01T10:00:01Z","level":"INFO","msg":"two"}`,
		`{"time":"2026-01-01T10:00:02Z","level":"INFO","msg":"three"}`,
	)

	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	entries, err := v.Tail(path, 2)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Msg)
	assert.Equal(t, "three", entries[1].Msg)
}

func TestViewer_FiltersByLevel(t *testing.T) {
	path := writeTestLog(t,
		`{"time":"2026-01-01T10:00:00Z","level":"DEBUG","msg":"noise"}`,
		`{"time":"2026-01-01T10:00:01Z","level":"ERROR","msg":"boom"}`,
	)

	v := NewViewer(ViewerConfig{Level: "warn", NoColor: true}, os.Stdout)
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].Msg)
}

func TestViewer_FiltersByPattern(t *testing.T) {
	path := writeTestLog(t,
		`{"time":"2026-01-01T10:00:00Z","level":"INFO","msg":"search_complete"}`,
		`{"time":"2026-01-01T10:00:01Z","level":"INFO","msg":"ingest_complete"}`,
	)

	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("ingest"), NoColor: true}, os.Stdout)
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "ingest_complete", entries[0].Msg)
}

func TestViewer_KeepsUnparseableLinesRaw(t *testing.T) {
	path := writeTestLog(t, "not json at all")

	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsValid)
	assert.Equal(t, "not json at all", v.FormatEntry(entries[0]))
}

func TestViewer_FollowPicksUpNewLines(t *testing.T) {
	path := writeTestLog(t, `{"time":"2026-01-01T10:00:00Z","level":"INFO","msg":"old"}`)

	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 10)
	go func() { _ = v.Follow(ctx, path, entries) }()

	// Give the follower time to seek to the end
	time.Sleep(200 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-01T10:00:05Z","level":"INFO","msg":"new"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case entry := <-entries:
		assert.Equal(t, "new", entry.Msg)
	case <-time.After(3 * time.Second):
		t.Fatal("follower did not deliver the new entry")
	}
}
