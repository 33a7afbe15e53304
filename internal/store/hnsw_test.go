package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_AddAndSearch_RanksBySimilarity(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	// Given: two orthogonal vectors
	err := idx.Add("docs", []int64{1, 2}, [][]float32{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)

	// When: searching near the first
	results, err := idx.Search("docs", []float32{0.95, 0.05, 0}, 2, 0)
	require.NoError(t, err)

	// Then: the aligned vector ranks first with near-perfect score
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestVectorIndex_Search_MinScoreFilters(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add("docs", []int64{1, 2}, [][]float32{{1, 0, 0}, {0, 1, 0}}))

	// When: searching with a high similarity floor
	results, err := idx.Search("docs", []float32{1, 0, 0}, 10, 0.9)
	require.NoError(t, err)

	// Then: the orthogonal vector (score 0.5) is excluded
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ChunkID)
}

func TestVectorIndex_MixedDimensions_RouteByQueryLength(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	// Given: one collection holding embeddings of two different sizes
	require.NoError(t, idx.Add("docs", []int64{1}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add("docs", []int64{2}, [][]float32{{1, 0, 0}}))

	// When: querying with a 2-dim vector
	results, err := idx.Search("docs", []float32{1, 0}, 10, 0)
	require.NoError(t, err)

	// Then: only the matching-dimension shard answers
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ChunkID)

	// And: both shards count toward the collection total
	assert.Equal(t, 2, idx.Count("docs"))
}

func TestVectorIndex_Search_UnknownCollection(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	results, err := idx.Search("ghost", []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_Delete_HidesVectors(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add("docs", []int64{1, 2}, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}}))

	// When: deleting the best match
	idx.Delete("docs", []int64{1})

	// Then: it no longer appears in results
	results, err := idx.Search("docs", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ChunkID)
	assert.Equal(t, 1, idx.Count("docs"))
}

func TestVectorIndex_DropCollection(t *testing.T) {
	idx := NewVectorIndex()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add("docs", []int64{1}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add("other", []int64{2}, [][]float32{{1, 0}}))

	idx.DropCollection("docs")

	assert.Equal(t, 0, idx.Count("docs"))
	assert.Equal(t, 1, idx.Count("other"))
}

func TestVectorIndex_SaveAndLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()

	idx := NewVectorIndex()
	require.NoError(t, idx.Add("docs", []int64{1, 2}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	idx.Delete("docs", []int64{2})

	// When: saving and loading into a fresh index
	require.NoError(t, idx.SaveAll(dir))
	require.NoError(t, idx.Close())

	loaded := NewVectorIndex()
	defer func() { _ = loaded.Close() }()
	require.NoError(t, loaded.LoadAll(dir))

	// Then: live vectors survive, deleted ones stay deleted
	results, err := loaded.Search("docs", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ChunkID)
	assert.Equal(t, 1, loaded.Count("docs"))
}

func TestVectorIndex_LoadAll_SkipsCorruptShards(t *testing.T) {
	dir := t.TempDir()

	// Given: one valid shard and one garbage shard
	idx := NewVectorIndex()
	require.NoError(t, idx.Add("good", []int64{1}, [][]float32{{1, 0}}))
	require.NoError(t, idx.SaveAll(dir))
	require.NoError(t, idx.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad_3.hnsw"), []byte("not a graph"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad_3.meta"), []byte("not gob"), 0o644))

	// When: loading the directory
	loaded := NewVectorIndex()
	defer func() { _ = loaded.Close() }()
	err := loaded.LoadAll(dir)

	// Then: the corrupt shard is skipped and the valid one loads
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Count("good"))
	assert.Equal(t, 0, loaded.Count("bad"))
}
