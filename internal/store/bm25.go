package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex is the alternative lexical backend: a Bleve v2 index over
// chunk content with English analysis. Selected with
// search.lexical_backend: bleve; the default backend is the FTS5 table
// inside SQLiteStore.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveIndex)(nil)

// chunkDoc is the indexed shape of a chunk. Collection is a keyword
// field so results can be filtered per collection.
type chunkDoc struct {
	Content    string `json:"content"`
	Collection string `json:"collection"`
}

// validateBleveIntegrity checks a Bleve index directory before opening.
// Returns nil if valid or missing, an error describing corruption if not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruptionError checks if an error indicates index corruption.
func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex creates or opens a lexical index at path. An empty path
// creates an in-memory index for testing. A corrupted on-disk index is
// cleared and recreated; callers should reindex afterwards.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createChunkMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, please reindex"))

			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// createChunkMapping builds the index mapping: English analysis for
// content (stemming and stop words), keyword analysis for the
// collection filter field.
func createChunkMapping() (*mapping.IndexMappingImpl, error) {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = en.AnalyzerName

	collectionField := bleve.NewTextFieldMapping()
	collectionField.Analyzer = keyword.Name
	collectionField.Store = false
	collectionField.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", contentField)
	doc.AddFieldMappingsAt("collection", collectionField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	return indexMapping, nil
}

// IndexChunks adds chunks to the index in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{Content: c.Content, Collection: c.CollectionID}
		if err := batch.Index(strconv.FormatInt(c.ID, 10), doc); err != nil {
			return fmt.Errorf("failed to index chunk %d: %w", c.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// LexicalSearch returns chunks matching every query token, scored by
// BM25 and normalised to [0,1] against the top hit. Each token matches
// either as an analysed term or as a prefix, so partial identifiers
// still hit.
func (b *BleveIndex) LexicalSearch(ctx context.Context, collectionID, queryStr string, topK int) ([]LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	fields := strings.Fields(queryStr)
	if len(fields) == 0 {
		return []LexicalResult{}, nil
	}

	conjuncts := make([]query.Query, 0, len(fields)+1)
	for _, f := range fields {
		match := bleve.NewMatchQuery(f)
		match.SetField("content")

		prefix := bleve.NewPrefixQuery(strings.ToLower(f))
		prefix.SetField("content")

		disjuncts := []query.Query{match, prefix}

		// Identifier-style fields additionally match their split parts,
		// so "getUserById" finds prose that spells the words out.
		if parts := TokenizeCode(f); len(parts) > 1 {
			sub := make([]query.Query, 0, len(parts))
			for _, p := range parts {
				pm := bleve.NewMatchQuery(p)
				pm.SetField("content")
				pp := bleve.NewPrefixQuery(p)
				pp.SetField("content")
				sub = append(sub, bleve.NewDisjunctionQuery(pm, pp))
			}
			disjuncts = append(disjuncts, bleve.NewConjunctionQuery(sub...))
		}

		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}

	collFilter := bleve.NewTermQuery(collectionID)
	collFilter.SetField("collection")
	conjuncts = append(conjuncts, collFilter)

	searchRequest := bleve.NewSearchRequest(bleve.NewConjunctionQuery(conjuncts...))
	searchRequest.Size = topK

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]LexicalResult, 0, len(result.Hits))
	var top float64
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue // foreign key in index, skip
		}
		if hit.Score > top {
			top = hit.Score
		}
		results = append(results, LexicalResult{ChunkID: id, Score: hit.Score})
	}

	if top > 0 {
		for i := range results {
			results[i].Score /= top
		}
	}

	return results, nil
}

// DeleteChunks removes chunks from the index.
func (b *BleveIndex) DeleteChunks(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(strconv.FormatInt(id, 10))
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
