package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex provides cosine ANN search over chunk embeddings using
// pure Go HNSW graphs. Graphs are sharded by (collection, dimensions)
// so collections whose documents were embedded by different providers
// stay searchable: a query vector only searches the shard matching its
// own dimensionality.
type VectorIndex struct {
	mu     sync.RWMutex
	shards map[string]*vectorShard // key: collectionID + "/" + dims
	closed bool

	// M and EfSearch apply to newly created shards.
	M        int
	EfSearch int
}

// vectorShard is one HNSW graph plus its live-ID set. Deletions are
// lazy: the node stays in the graph but is dropped from live, so it
// never appears in results.
type vectorShard struct {
	graph      *hnsw.Graph[uint64]
	live       map[uint64]struct{}
	collection string
	dims       int
}

// vectorShardMeta stores the live-ID set for persistence.
type vectorShardMeta struct {
	Live       map[uint64]struct{}
	Collection string
	Dims       int
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		shards:   make(map[string]*vectorShard),
		M:        16,
		EfSearch: 64,
	}
}

func shardKey(collectionID string, dims int) string {
	return fmt.Sprintf("%s/%d", collectionID, dims)
}

func (v *VectorIndex) newShard(collectionID string, dims int) *vectorShard {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = v.M
	graph.EfSearch = v.EfSearch
	graph.Ml = 0.25
	return &vectorShard{
		graph:      graph,
		live:       make(map[uint64]struct{}),
		collection: collectionID,
		dims:       dims,
	}
}

// Add inserts chunk embeddings into the collection's shard for their
// dimensionality. Re-adding an existing ID replaces it.
func (v *VectorIndex) Add(collectionID string, ids []int64, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for i, id := range ids {
		vec := vectors[i]
		if len(vec) == 0 {
			continue
		}

		key := shardKey(collectionID, len(vec))
		shard, ok := v.shards[key]
		if !ok {
			shard = v.newShard(collectionID, len(vec))
			v.shards[key] = shard
		}

		// Normalize for cosine distance
		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeVectorInPlace(normalized)

		shard.graph.Add(hnsw.MakeNode(uint64(id), normalized))
		shard.live[uint64(id)] = struct{}{}
	}

	return nil
}

// Search finds the topK nearest chunks in the collection shard
// matching the query's dimensionality. Results are sorted by
// descending similarity; minScore filters low-similarity hits.
func (v *VectorIndex) Search(collectionID string, query []float32, topK int, minScore float32) ([]VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) == 0 || topK <= 0 {
		return []VectorResult{}, nil
	}

	shard, ok := v.shards[shardKey(collectionID, len(query))]
	if !ok || shard.graph.Len() == 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Overfetch to compensate for lazily deleted nodes
	fetch := topK + (shard.graph.Len() - len(shard.live))
	nodes := shard.graph.Search(normalized, fetch)

	results := make([]VectorResult, 0, topK)
	for _, node := range nodes {
		if _, alive := shard.live[node.Key]; !alive {
			continue
		}

		distance := shard.graph.Distance(normalized, node.Value)
		score := 1.0 - distance/2.0 // cosine distance 0..2 -> similarity 0..1
		if score < minScore {
			continue
		}

		results = append(results, VectorResult{
			ChunkID: int64(node.Key),
			Score:   score,
		})
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// Delete removes chunk IDs from every shard of the collection.
// Uses lazy deletion: nodes stay in the graph but leave the live set.
func (v *VectorIndex) Delete(collectionID string, ids []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}

	for _, shard := range v.shards {
		if shard.collection != collectionID {
			continue
		}
		for _, id := range ids {
			delete(shard.live, uint64(id))
		}
	}
}

// DropCollection removes all shards belonging to a collection.
func (v *VectorIndex) DropCollection(collectionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for key, shard := range v.shards {
		if shard.collection == collectionID {
			delete(v.shards, key)
		}
	}
}

// Count returns the number of live vectors for a collection across all
// of its shards.
func (v *VectorIndex) Count(collectionID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := 0
	for _, shard := range v.shards {
		if shard.collection == collectionID {
			total += len(shard.live)
		}
	}
	return total
}

// SaveAll persists every shard under dir using atomic temp+rename.
// Layout: <dir>/<collection>_<dims>.hnsw plus a .meta gob sidecar.
func (v *VectorIndex) SaveAll(dir string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create vector directory: %w", err)
	}

	for _, shard := range v.shards {
		base := filepath.Join(dir, fmt.Sprintf("%s_%d.hnsw", shard.collection, shard.dims))
		if err := saveShard(shard, base); err != nil {
			return fmt.Errorf("failed to save shard %s/%d: %w", shard.collection, shard.dims, err)
		}
	}

	return nil
}

func saveShard(shard *vectorShard, path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := shard.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	metaPath := path + ".meta"
	tmpMeta := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMeta)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}

	meta := vectorShardMeta{
		Live:       shard.live,
		Collection: shard.collection,
		Dims:       shard.dims,
	}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		_ = metaFile.Close()
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("close meta file: %w", err)
	}

	return os.Rename(tmpMeta, metaPath)
}

// LoadAll restores shards previously written by SaveAll. Shards that
// fail to load are skipped with a warning; callers should rebuild from
// stored embeddings when the index comes back incomplete.
func (v *VectorIndex) LoadAll(dir string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing persisted yet
		}
		return fmt.Errorf("failed to read vector directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".hnsw") {
			continue
		}

		path := filepath.Join(dir, name)
		shard, err := v.loadShard(path)
		if err != nil {
			slog.Warn("vector_shard_load_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		v.shards[shardKey(shard.collection, shard.dims)] = shard
	}

	return nil
}

func (v *VectorIndex) loadShard(path string) (*vectorShard, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open meta file: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorShardMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}

	shard := v.newShard(meta.Collection, meta.Dims)
	shard.live = meta.Live
	if shard.live == nil {
		shard.live = make(map[uint64]struct{})
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := shard.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}

	return shard, nil
}

// Close releases the graphs. Further calls fail.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.shards = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
