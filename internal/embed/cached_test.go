package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_RepeatedTextSkipsProvider(t *testing.T) {
	// Given a cached embedder over a counting fake
	inner := newFakeEmbedder("ollama", "nomic-embed-text", 8)
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	// When the same text is embedded twice
	first, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	// Then the provider is called once and both results match
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls())

	hits, misses := cached.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	// Given two texts already cached
	inner := newFakeEmbedder("ollama", "nomic-embed-text", 8)
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls())

	// When a batch mixes cached and new texts
	results, err := cached.EmbedBatch(context.Background(), []string{"alpha", "gamma", "beta"})
	require.NoError(t, err)

	// Then only the miss reaches the provider
	require.Len(t, results, 3)
	require.Equal(t, 2, inner.calls())
	assert.Equal(t, []string{"gamma"}, inner.seenTexts[1])

	// And results land in input order
	assert.Equal(t, inner.vector("alpha"), results[0])
	assert.Equal(t, inner.vector("gamma"), results[1])
	assert.Equal(t, inner.vector("beta"), results[2])
}

func TestCachedEmbedder_FullyCachedBatchSkipsProvider(t *testing.T) {
	inner := newFakeEmbedder("ollama", "nomic-embed-text", 8)
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)

	// When every text is already cached
	_, err = cached.EmbedBatch(context.Background(), []string{"two", "one"})
	require.NoError(t, err)

	// Then no second provider call happens
	assert.Equal(t, 1, inner.calls())
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	inner := newFakeEmbedder("ollama", "nomic-embed-text", 8)
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	results, err := cached.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, inner.calls())
}

func TestCachedEmbedder_ProviderErrorNotCached(t *testing.T) {
	// Given a failing provider
	inner := newFakeEmbedder("ollama", "nomic-embed-text", 8)
	inner.err = assert.AnError
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	// When the first call fails and the provider recovers
	_, err = cached.Embed(context.Background(), "flaky")
	require.Error(t, err)
	inner.err = nil

	// Then the retry reaches the provider instead of a cached error
	vec, err := cached.Embed(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, inner.vector("flaky"), vec)
	assert.Equal(t, 2, inner.calls())
}

// shortBatchEmbedder drops the last vector from every batch response.
type shortBatchEmbedder struct{ *fakeEmbedder }

func (s *shortBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.fakeEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

func TestCachedEmbedder_InnerMismatchDetected(t *testing.T) {
	// Given a provider that returns fewer vectors than texts
	inner := &shortBatchEmbedder{newFakeEmbedder("ollama", "nomic-embed-text", 8)}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	// When a batch goes through
	_, err = cached.EmbedBatch(context.Background(), []string{"one", "two"})

	// Then the count mismatch is an error, not a partial fill
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 texts")
}

func TestCachedEmbedder_Passthroughs(t *testing.T) {
	inner := newFakeEmbedder("voyage", "voyage-code-2", 1024)
	cached, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)

	assert.Equal(t, 1024, cached.Dimensions())
	assert.Equal(t, "voyage-code-2", cached.ModelName())
	assert.Equal(t, "voyage", cached.ProviderName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, Embedder(inner), cached.Inner())

	require.NoError(t, cached.Close())
	assert.True(t, inner.closed)
}
