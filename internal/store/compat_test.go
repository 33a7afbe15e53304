package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The gateway writes with the pure Go driver. External tooling
// (sqlite3 CLI, cgo-based readers) must still be able to open the
// database, so verify a WAL database written by modernc reads cleanly
// through mattn.
func TestSQLiteStore_DatabaseReadableByCgoDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synthesis.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	mustCreateCollection(t, s, "docs")
	mustCreateDocument(t, s, "docs", "doc-1")
	require.NoError(t, s.CompleteDocument(ctx, "doc-1",
		[]*Chunk{{ChunkIndex: 0, Content: "cross driver payload"}}, DocumentMeta{}))
	require.NoError(t, s.Close())

	// When: opening the same file with the cgo driver
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// Then: rows written by the pure Go driver are visible
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count))
	assert.Equal(t, 1, count)

	var content string
	require.NoError(t, db.QueryRow(
		`SELECT content FROM chunks WHERE document_id = ?`, "doc-1").Scan(&content))
	assert.Equal(t, "cross driver payload", content)
}
