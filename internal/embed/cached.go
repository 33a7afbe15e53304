package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to cache.
const DefaultCacheSize = 10000

// CachedEmbedder wraps an Embedder with an LRU cache keyed by content
// hash. Repeated texts (re-ingested documents, common queries) skip the
// provider entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]

	mu     sync.RWMutex
	hits   int64
	misses int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps an embedder with an LRU cache.
// If size <= 0, DefaultCacheSize is used.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}, nil
}

// cacheKey builds a key from the text and the model that produced the
// vector, so switching models never serves stale embeddings.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.ModelName()))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns a cached embedding or delegates to the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if cached, ok := c.cache.Get(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cached, nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, embedding)
	return embedding, nil
}

// EmbedBatch checks the cache for each text and only sends misses to
// the inner embedder, then merges results back in input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string

	for i, text := range texts {
		key := c.cacheKey(text)
		if cached, ok := c.cache.Get(key); ok {
			results[i] = cached
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
			c.mu.Lock()
			c.misses++
			c.mu.Unlock()
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	embeddings, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(missTexts) {
		return nil, fmt.Errorf("inner embedder returned %d embeddings for %d texts", len(embeddings), len(missTexts))
	}

	for j, idx := range missIndices {
		results[idx] = embeddings[j]
		c.cache.Add(c.cacheKey(missTexts[j]), embeddings[j])
	}

	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the inner embedder's model name.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// ProviderName returns the inner embedder's provider name.
func (c *CachedEmbedder) ProviderName() string {
	return c.inner.ProviderName()
}

// Available delegates to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
