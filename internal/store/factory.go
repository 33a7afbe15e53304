package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend selects where keyword search runs.
type LexicalBackend string

const (
	// LexicalBackendSQLite answers keyword queries from the FTS5 table
	// inside the metadata database (default). Rows are maintained by
	// trigger, so the lexical index can never drift from the chunks.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve keeps a separate Bleve v2 index next to the
	// database. Single process only due to the BoltDB lock.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// OpenLexicalIndex returns the configured lexical backend. The sqlite
// backend is the store itself; bleve opens an index directory derived
// from dataDir.
func OpenLexicalIndex(backend string, dataDir string, s *SQLiteStore) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendSQLite, "":
		return s, nil

	case LexicalBackendBleve:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "lexical.bleve")
		}
		return NewBleveIndex(path)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}
