package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

// SQLiteStore is the storage gateway: collections, documents, chunks,
// relationships, api usage, and budget alerts in one SQLite database,
// with FTS5 lexical search and an in-process HNSW vector index.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	vectors *VectorIndex
}

var _ LexicalIndex = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks a database file before opening.
// Returns nil if valid or missing, an error describing corruption if not.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// Open opens (or creates) the gateway database at path. An empty path
// creates an in-memory database for testing.
func Open(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			return nil, synerrors.Internal("database failed integrity check", validErr).
				WithDetail("path", path).
				WithSuggestion("restore from backup or remove the database file and re-ingest")
		}

		// WAL mode for concurrent access, busy timeout for lock contention
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, synerrors.Internal("failed to open database", err)
	}

	// Single writer prevents lock contention with the modernc driver
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite, DSN params can be ignored
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, synerrors.Internal("failed to set pragma", err)
		}
	}

	s := &SQLiteStore{
		db:      db,
		path:    path,
		vectors: NewVectorIndex(),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, synerrors.Internal("failed to initialize schema", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS collections (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id                   TEXT PRIMARY KEY,
		collection_id        TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		file_name            TEXT NOT NULL,
		extension            TEXT NOT NULL DEFAULT '',
		content_type         TEXT NOT NULL DEFAULT '',
		size_bytes           INTEGER NOT NULL DEFAULT 0,
		status               TEXT NOT NULL DEFAULT 'pending',
		status_message       TEXT NOT NULL DEFAULT '',
		metadata             TEXT NOT NULL DEFAULT '{}',
		chunk_count          INTEGER NOT NULL DEFAULT 0,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		collection_id TEXT NOT NULL,
		chunk_index   INTEGER NOT NULL,
		content       TEXT NOT NULL,
		language      TEXT NOT NULL DEFAULT '',
		start_line    INTEGER NOT NULL DEFAULT 0,
		end_line      INTEGER NOT NULL DEFAULT 0,
		metadata      TEXT NOT NULL DEFAULT '{}',
		embedding     BLOB,
		model         TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		UNIQUE(document_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	-- External-content FTS5 table over chunks.content with an
	-- English configuration (porter stemming over unicode61)
	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
		content,
		content='chunks',
		content_rowid='id',
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
		INSERT INTO chunk_fts(rowid, content) VALUES (new.id, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
		INSERT INTO chunk_fts(chunk_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE OF content ON chunks BEGIN
		INSERT INTO chunk_fts(chunk_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO chunk_fts(rowid, content) VALUES (new.id, new.content);
	END;

	CREATE TABLE IF NOT EXISTS relationships (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		collection_id TEXT NOT NULL,
		source_path   TEXT NOT NULL,
		target_path   TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		UNIQUE(collection_id, source_path, target_path, relation_type)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(collection_id, source_path);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(collection_id, target_path);

	CREATE TABLE IF NOT EXISTS api_usage (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		provider      TEXT NOT NULL,
		operation     TEXT NOT NULL,
		model         TEXT NOT NULL DEFAULT '',
		tokens        INTEGER NOT NULL DEFAULT 0,
		requests      INTEGER NOT NULL DEFAULT 1,
		cost_usd      TEXT NOT NULL DEFAULT '0',
		collection_id TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_api_usage_created ON api_usage(created_at);

	CREATE TABLE IF NOT EXISTS budget_alerts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		kind         TEXT NOT NULL,
		message      TEXT NOT NULL DEFAULT '',
		acknowledged INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Vectors exposes the in-process ANN index.
func (s *SQLiteStore) Vectors() *VectorIndex {
	return s.vectors
}

// Close checkpoints and closes the database and vector index.
func (s *SQLiteStore) Close() error {
	_ = s.vectors.Close()
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction. Rollback is guaranteed on every
// non-commit exit path, including panics.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return mapSQLError(tx.Commit(), "commit transaction")
}

// mapSQLError converts driver errors into the shared taxonomy.
func mapSQLError(err error, op string) error {
	if err == nil {
		return nil
	}

	var se *synerrors.SynthError
	if stderrors.As(err, &se) {
		return err // already classified
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return synerrors.Wrap(err, synerrors.CodeConflict, op+": duplicate identifier")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return synerrors.Wrap(err, synerrors.CodeNotFound, op+": referenced row missing")
	case stderrors.Is(err, context.DeadlineExceeded):
		return synerrors.Wrap(err, synerrors.CodeInternal, op+": storage timeout")
	default:
		return synerrors.Wrap(err, synerrors.CodeInternal, op+" failed")
	}
}

// ---- Collections ----

// CreateCollection inserts a new collection. Duplicate IDs conflict.
func (s *SQLiteStore) CreateCollection(ctx context.Context, c *Collection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalJSON(c.Metadata)
	if err != nil {
		return synerrors.Internal("failed to encode collection metadata", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, metadata, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, meta, c.CreatedAt.Unix())
	return mapSQLError(err, "create collection")
}

// GetCollection fetches a collection by ID.
func (s *SQLiteStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, metadata, created_at FROM collections WHERE id = ?`, id)

	c, err := scanCollection(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, synerrors.NotFound("collection", id)
	}
	if err != nil {
		return nil, mapSQLError(err, "get collection")
	}
	return c, nil
}

// ListCollections returns all collections, newest first.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, metadata, created_at FROM collections ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, mapSQLError(err, "list collections")
	}
	defer func() { _ = rows.Close() }()

	var out []*Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, mapSQLError(err, "scan collection")
		}
		out = append(out, c)
	}
	return out, mapSQLError(rows.Err(), "list collections")
}

// DeleteCollection removes a collection with its documents and chunks
// (cascaded), relationships, and vector shards.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
		if err != nil {
			return mapSQLError(err, "delete collection")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mapSQLError(err, "delete collection")
		}
		if n == 0 {
			return synerrors.NotFound("collection", id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM relationships WHERE collection_id = ?`, id)
		return mapSQLError(err, "delete collection relationships")
	})
	if err != nil {
		return err
	}

	s.vectors.DropCollection(id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*Collection, error) {
	var (
		c       Collection
		meta    string
		created int64
	)
	if err := row.Scan(&c.ID, &c.Name, &meta, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode collection metadata: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}

// ---- Documents ----

// CreateDocument inserts a document in its initial status.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d *Document) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = StatusPending
	}

	meta, err := marshalJSON(d.Meta)
	if err != nil {
		return synerrors.Internal("failed to encode document metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, collection_id, file_name, extension, content_type, size_bytes,
			 status, status_message, metadata, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CollectionID, d.FileName, d.Extension, d.ContentType, d.SizeBytes,
		string(d.Status), d.StatusMessage, meta, d.ChunkCount,
		d.CreatedAt.Unix(), d.UpdatedAt.Unix())
	return mapSQLError(err, "create document")
}

const documentColumns = `id, collection_id, file_name, extension, content_type, size_bytes,
	status, status_message, metadata, chunk_count, created_at, updated_at`

// GetDocument fetches a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	d, err := scanDocument(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, synerrors.NotFound("document", id)
	}
	if err != nil {
		return nil, mapSQLError(err, "get document")
	}
	return d, nil
}

// ListDocuments returns a collection's documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, collectionID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = ?
		 ORDER BY created_at DESC, id`, collectionID)
	if err != nil {
		return nil, mapSQLError(err, "list documents")
	}
	defer func() { _ = rows.Close() }()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapSQLError(err, "scan document")
		}
		out = append(out, d)
	}
	return out, mapSQLError(rows.Err(), "list documents")
}

// ListDocumentPaths returns the distinct file names of a collection's
// documents, used for relationship derivation.
func (s *SQLiteStore) ListDocumentPaths(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT file_name FROM documents WHERE collection_id = ? ORDER BY file_name`,
		collectionID)
	if err != nil {
		return nil, mapSQLError(err, "list document paths")
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, mapSQLError(err, "scan document path")
		}
		out = append(out, p)
	}
	return out, mapSQLError(rows.Err(), "list document paths")
}

// DeleteDocument removes a document, its chunks (cascaded, FTS kept in
// sync by trigger), and its vectors.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	chunkIDs, err := s.chunkIDsByDocument(ctx, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		return mapSQLError(err, "delete document")
	})
	if err != nil {
		return err
	}

	s.vectors.Delete(doc.CollectionID, chunkIDs)
	return nil
}

// UpdateDocumentStatus persists a pipeline state transition.
func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, id string, status DocumentStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, status_message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, time.Now().UTC().Unix(), id)
	if err != nil {
		return mapSQLError(err, "update document status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(err, "update document status")
	}
	if n == 0 {
		return synerrors.NotFound("document", id)
	}
	return nil
}

// UpdateDocumentMeta replaces a document's metadata.
func (s *SQLiteStore) UpdateDocumentMeta(ctx context.Context, id string, meta DocumentMeta) error {
	encoded, err := marshalJSON(meta)
	if err != nil {
		return synerrors.Internal("failed to encode document metadata", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET metadata = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC().Unix(), id)
	if err != nil {
		return mapSQLError(err, "update document metadata")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(err, "update document metadata")
	}
	if n == 0 {
		return synerrors.NotFound("document", id)
	}
	return nil
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d       Document
		status  string
		meta    string
		created int64
		updated int64
	)
	if err := row.Scan(&d.ID, &d.CollectionID, &d.FileName, &d.Extension, &d.ContentType,
		&d.SizeBytes, &status, &d.StatusMessage, &meta, &d.ChunkCount, &created, &updated); err != nil {
		return nil, err
	}
	d.Status = DocumentStatus(status)
	if err := json.Unmarshal([]byte(meta), &d.Meta); err != nil {
		return nil, fmt.Errorf("decode document metadata: %w", err)
	}
	d.CreatedAt = time.Unix(created, 0).UTC()
	d.UpdatedAt = time.Unix(updated, 0).UTC()
	return &d, nil
}

// ---- Chunks ----

// CompleteDocument persists a document's chunks and marks it complete
// in one transaction: all chunks land or none do. Chunk IDs are
// assigned by the database and written back to the slice. Embedding
// metadata goes onto the document. After commit the vectors are added
// to the ANN index.
func (s *SQLiteStore) CompleteDocument(ctx context.Context, docID string, chunks []*Chunk, meta DocumentMeta) error {
	// Every stored vector must match the document's recorded dimensions,
	// or vector search over the collection silently degrades.
	if meta.EmbeddingDimensions > 0 {
		for _, c := range chunks {
			if len(c.Embedding) > 0 && len(c.Embedding) != meta.EmbeddingDimensions {
				return synerrors.InvalidInputf(
					"chunk %d embedding has %d dimensions, document records %d",
					c.ChunkIndex, len(c.Embedding), meta.EmbeddingDimensions)
			}
		}
	}

	encoded, err := marshalJSON(meta)
	if err != nil {
		return synerrors.Internal("failed to encode document metadata", err)
	}

	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// Replace any chunks from a previous ingestion of this document
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
			return mapSQLError(err, "clear previous chunks")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks
				(document_id, collection_id, chunk_index, content, language,
				 start_line, end_line, metadata, embedding, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return mapSQLError(err, "prepare chunk insert")
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range chunks {
			c.DocumentID = docID
			c.CollectionID = doc.CollectionID
			c.CreatedAt = now

			chunkMeta, err := marshalJSON(c.Metadata)
			if err != nil {
				return synerrors.Internal("failed to encode chunk metadata", err)
			}

			res, err := stmt.ExecContext(ctx,
				c.DocumentID, c.CollectionID, c.ChunkIndex, c.Content, c.Language,
				c.StartLine, c.EndLine, chunkMeta, encodeVector(c.Embedding), c.Model,
				now.Unix())
			if err != nil {
				return mapSQLError(err, "insert chunk")
			}
			id, err := res.LastInsertId()
			if err != nil {
				return mapSQLError(err, "insert chunk")
			}
			c.ID = id
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET status = ?, status_message = '', metadata = ?, chunk_count = ?, updated_at = ?
			WHERE id = ?`,
			string(StatusComplete), encoded, len(chunks), now.Unix(), docID)
		return mapSQLError(err, "mark document complete")
	})
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			ids = append(ids, c.ID)
			vecs = append(vecs, c.Embedding)
		}
	}
	if err := s.vectors.Add(doc.CollectionID, ids, vecs); err != nil {
		// The chunks are durable; the ANN index can be rebuilt
		slog.Warn("vector_index_add_failed",
			slog.String("document", docID),
			slog.String("error", err.Error()))
	}

	return nil
}

// GetChunk fetches one chunk by ID.
func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, synerrors.NotFound("chunk", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, mapSQLError(err, "get chunk")
	}
	return c, nil
}

const chunkColumns = `id, document_id, collection_id, chunk_index, content, language,
	start_line, end_line, metadata, embedding, model, created_at`

// GetChunks batch-fetches chunks by ID. Missing IDs are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE id IN (%s)`,
		chunkColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError(err, "get chunks")
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, mapSQLError(err, "scan chunk")
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err, "get chunks")
	}

	// Preserve request order
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetChunksByDocument returns a document's chunks in index order.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, mapSQLError(err, "get chunks by document")
	}
	defer func() { _ = rows.Close() }()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, mapSQLError(err, "scan chunk")
		}
		out = append(out, c)
	}
	return out, mapSQLError(rows.Err(), "get chunks by document")
}

func (s *SQLiteStore) chunkIDsByDocument(ctx context.Context, docID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, docID)
	if err != nil {
		return nil, mapSQLError(err, "list chunk ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapSQLError(err, "scan chunk id")
		}
		ids = append(ids, id)
	}
	return ids, mapSQLError(rows.Err(), "list chunk ids")
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		c       Chunk
		meta    string
		blob    []byte
		created int64
	)
	if err := row.Scan(&c.ID, &c.DocumentID, &c.CollectionID, &c.ChunkIndex, &c.Content,
		&c.Language, &c.StartLine, &c.EndLine, &meta, &blob, &c.Model, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode chunk metadata: %w", err)
	}
	c.Embedding = decodeVector(blob)
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}

// RebuildVectors repopulates the ANN index from stored embeddings.
// Used at startup when no persisted index exists or loading failed.
func (s *SQLiteStore) RebuildVectors(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return mapSQLError(err, "rebuild vectors")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id         int64
			collection string
			blob       []byte
		)
		if err := rows.Scan(&id, &collection, &blob); err != nil {
			return mapSQLError(err, "rebuild vectors")
		}
		vec := decodeVector(blob)
		if len(vec) == 0 {
			continue
		}
		if err := s.vectors.Add(collection, []int64{id}, [][]float32{vec}); err != nil {
			return err
		}
	}
	return mapSQLError(rows.Err(), "rebuild vectors")
}

// ---- Vector search ----

// VectorSearch runs cosine ANN search over a collection's chunks.
// Results are sorted by descending similarity in [0,1].
func (s *SQLiteStore) VectorSearch(ctx context.Context, collectionID string, query []float32, topK int, minScore float32) ([]VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vectors.Search(collectionID, query, topK, minScore)
}

// ---- Lexical search (FTS5) ----

// IndexChunks satisfies LexicalIndex. FTS5 rows are maintained by
// trigger inside the chunk insert transaction, so there is nothing to do.
func (s *SQLiteStore) IndexChunks(ctx context.Context, chunks []*Chunk) error {
	return nil
}

// DeleteChunks satisfies LexicalIndex; the delete trigger keeps FTS in sync.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, chunkIDs []int64) error {
	return nil
}

// LexicalSearch runs ranked keyword retrieval over a collection's
// chunks. Query tokens are matched with prefix expansion joined by
// AND; scores are normalised to [0,1] by dividing by the top score.
// An empty query returns an empty result, not an error.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, collectionID, query string, topK int) ([]LexicalResult, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []LexicalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, bm25(chunk_fts) AS score
		FROM chunk_fts
		JOIN chunks c ON c.id = chunk_fts.rowid
		WHERE chunk_fts MATCH ? AND c.collection_id = ?
		ORDER BY score
		LIMIT ?`,
		match, collectionID, topK)
	if err != nil {
		// FTS5 rejects some token sequences as syntax errors; treat as no results
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []LexicalResult{}, nil
		}
		return nil, mapSQLError(err, "lexical search")
	}
	defer func() { _ = rows.Close() }()

	var results []LexicalResult
	for rows.Next() {
		var (
			id    int64
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, mapSQLError(err, "scan lexical result")
		}
		// FTS5 bm25() is negative where lower is better
		results = append(results, LexicalResult{ChunkID: id, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err, "lexical search")
	}

	normalizeLexicalScores(results)
	return results, nil
}

var queryStopWords = BuildStopWordMap(DefaultCodeStopWords)

// buildMatchQuery converts a free-text query into an FTS5 MATCH
// expression: tokens split on whitespace, each quoted with prefix
// expansion, joined by AND. Stop words are dropped unless the query is
// nothing but stop words.
func buildMatchQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	if kept := FilterStopWords(fields, queryStopWords); len(kept) > 0 {
		fields = kept
	}

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		// Strip embedded quotes so user input cannot alter the match syntax
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, matchTerm(f))
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " AND ")
}

// matchTerm builds the MATCH fragment for one query field. camelCase
// and snake_case identifiers also match their spelled-out parts, so
// "getUserById" finds prose that says "get user by id".
func matchTerm(f string) string {
	parts := SplitCodeToken(f)
	if len(parts) <= 1 {
		return `"` + f + `"*`
	}
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		quoted = append(quoted, `"`+p+`"*`)
	}
	return `("` + f + `"* OR (` + strings.Join(quoted, " AND ") + `))`
}

func normalizeLexicalScores(results []LexicalResult) {
	if len(results) == 0 {
		return
	}
	top := results[0].Score
	for _, r := range results {
		if r.Score > top {
			top = r.Score
		}
	}
	if top <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= top
	}
}

// ---- Relationships ----

// UpsertRelationships inserts edges, ignoring duplicates. Idempotent on
// (collection, source, target, type).
func (s *SQLiteStore) UpsertRelationships(ctx context.Context, rels []*Relationship) error {
	if len(rels) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships (collection_id, source_path, target_path, relation_type, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(collection_id, source_path, target_path, relation_type) DO NOTHING`)
		if err != nil {
			return mapSQLError(err, "prepare relationship upsert")
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC().Unix()
		for _, r := range rels {
			if _, err := stmt.ExecContext(ctx,
				r.CollectionID, r.SourcePath, r.TargetPath, string(r.Type), now); err != nil {
				return mapSQLError(err, "upsert relationship")
			}
		}
		return nil
	})
}

// ListRelationships returns every edge touching the path in either
// direction within the collection.
func (s *SQLiteStore) ListRelationships(ctx context.Context, collectionID, path string) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, source_path, target_path, relation_type, created_at
		FROM relationships
		WHERE collection_id = ? AND (source_path = ? OR target_path = ?)
		ORDER BY id`,
		collectionID, path, path)
	if err != nil {
		return nil, mapSQLError(err, "list relationships")
	}
	defer func() { _ = rows.Close() }()

	var out []*Relationship
	for rows.Next() {
		var (
			r       Relationship
			relType string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.CollectionID, &r.SourcePath, &r.TargetPath, &relType, &created); err != nil {
			return nil, mapSQLError(err, "scan relationship")
		}
		r.Type = RelationType(relType)
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &r)
	}
	return out, mapSQLError(rows.Err(), "list relationships")
}

// ---- API usage ----

// InsertUsage appends one usage record.
func (s *SQLiteStore) InsertUsage(ctx context.Context, u *UsageRecord) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Requests == 0 {
		u.Requests = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_usage (provider, operation, model, tokens, requests, cost_usd, collection_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Provider, u.Operation, u.Model, u.Tokens, u.Requests,
		u.CostUSD.String(), u.CollectionID, u.CreatedAt.Unix())
	return mapSQLError(err, "insert usage")
}

// SpendBetween sums usage cost in [from, to).
func (s *SQLiteStore) SpendBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cost_usd FROM api_usage WHERE created_at >= ? AND created_at < ?`,
		from.Unix(), to.Unix())
	if err != nil {
		return decimal.Zero, mapSQLError(err, "spend between")
	}
	defer func() { _ = rows.Close() }()

	total := decimal.Zero
	for rows.Next() {
		var cost string
		if err := rows.Scan(&cost); err != nil {
			return decimal.Zero, mapSQLError(err, "scan usage cost")
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return decimal.Zero, synerrors.Internal("corrupt cost value in usage table", err)
		}
		total = total.Add(d)
	}
	return total, mapSQLError(rows.Err(), "spend between")
}

// DailySpends returns per-day totals in [from, to), ascending by date.
func (s *SQLiteStore) DailySpends(ctx context.Context, from, to time.Time) ([]DailySpend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at, 'unixepoch') AS day, cost_usd
		FROM api_usage WHERE created_at >= ? AND created_at < ?`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, mapSQLError(err, "daily spends")
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			day  string
			cost string
		)
		if err := rows.Scan(&day, &cost); err != nil {
			return nil, mapSQLError(err, "scan daily spend")
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, synerrors.Internal("corrupt cost value in usage table", err)
		}
		totals[day] = totals[day].Add(d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err, "daily spends")
	}

	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DailySpend, 0, len(days))
	for _, day := range days {
		out = append(out, DailySpend{Date: day, Total: totals[day]})
	}
	return out, nil
}

// UsageBreakdown aggregates usage by (provider, operation) in [from, to),
// with request count, token total, cost total, and mean cost per request.
func (s *SQLiteStore) UsageBreakdown(ctx context.Context, from, to time.Time) ([]SpendBreakdown, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, operation, tokens, requests, cost_usd
		FROM api_usage WHERE created_at >= ? AND created_at < ?`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, mapSQLError(err, "usage breakdown")
	}
	defer func() { _ = rows.Close() }()

	type key struct{ provider, operation string }
	agg := make(map[key]*SpendBreakdown)
	for rows.Next() {
		var (
			provider  string
			operation string
			tokens    int64
			requests  int
			cost      string
		)
		if err := rows.Scan(&provider, &operation, &tokens, &requests, &cost); err != nil {
			return nil, mapSQLError(err, "scan usage row")
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, synerrors.Internal("corrupt cost value in usage table", err)
		}

		k := key{provider, operation}
		b, ok := agg[k]
		if !ok {
			b = &SpendBreakdown{Provider: provider, Operation: operation}
			agg[k] = b
		}
		b.Requests += requests
		b.Tokens += tokens
		b.TotalCost = b.TotalCost.Add(d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err, "usage breakdown")
	}

	out := make([]SpendBreakdown, 0, len(agg))
	for _, b := range agg {
		if b.Requests > 0 {
			b.MeanPerRequest = b.TotalCost.Div(decimal.NewFromInt(int64(b.Requests))).Round(8)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Operation < out[j].Operation
	})
	return out, nil
}

// ---- Budget alerts ----

// InsertAlert persists a budget alert.
func (s *SQLiteStore) InsertAlert(ctx context.Context, a *BudgetAlert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (kind, message, acknowledged, created_at) VALUES (?, ?, ?, ?)`,
		string(a.Kind), a.Message, boolToInt(a.Acknowledged), a.CreatedAt.Unix())
	if err != nil {
		return mapSQLError(err, "insert alert")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mapSQLError(err, "insert alert")
	}
	a.ID = id
	return nil
}

// RecentAlerts returns the latest alerts, newest first.
func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]*BudgetAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, message, acknowledged, created_at
		FROM budget_alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapSQLError(err, "recent alerts")
	}
	defer func() { _ = rows.Close() }()

	var out []*BudgetAlert
	for rows.Next() {
		var (
			a       BudgetAlert
			kind    string
			ack     int
			created int64
		)
		if err := rows.Scan(&a.ID, &kind, &a.Message, &ack, &created); err != nil {
			return nil, mapSQLError(err, "scan alert")
		}
		a.Kind = AlertKind(kind)
		a.Acknowledged = ack != 0
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &a)
	}
	return out, mapSQLError(rows.Err(), "recent alerts")
}

// HasUnacknowledgedAlertSince reports whether an unacknowledged alert of
// the given kind exists at or after since. Drives 24h de-duplication.
func (s *SQLiteStore) HasUnacknowledgedAlertSince(ctx context.Context, kind AlertKind, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM budget_alerts
		WHERE kind = ? AND acknowledged = 0 AND created_at >= ?`,
		string(kind), since.Unix()).Scan(&count)
	if err != nil {
		return false, mapSQLError(err, "check alerts")
	}
	return count > 0, nil
}

// AcknowledgeAlert marks an alert acknowledged.
func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budget_alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return mapSQLError(err, "acknowledge alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(err, "acknowledge alert")
	}
	if n == 0 {
		return synerrors.NotFound("alert", fmt.Sprintf("%d", id))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- Embedding codec ----

// encodeVector packs a float32 slice as little-endian bytes for BLOB
// storage. Nil input yields nil (stored as SQL NULL).
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a BLOB written by encodeVector.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
