package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for a single provider request
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3

	// DefaultOllamaHost is the local Ollama endpoint
	DefaultOllamaHost = "http://localhost:11434"
)

// Static embedder constants
const (
	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// knownModelDimensions maps model names to their fixed output width.
// Used when a provider config does not pin dimensions explicitly.
var knownModelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"text-embedding-3-large": 1536,
	"text-embedding-3-small": 1536,
	"voyage-code-2":          1024,
	"voyage-2":               1024,
}

// ModelDimensions returns the known output width for a model, or 0.
func ModelDimensions(model string) int {
	return knownModelDimensions[model]
}

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// ProviderName returns the provider identifier (ollama, openai, voyage, static)
	ProviderName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// EstimateTokens approximates the token count of texts for usage
// accounting: roughly one token per four characters.
func EstimateTokens(texts ...string) int64 {
	var chars int
	for _, t := range texts {
		chars += len(t)
	}
	if chars == 0 {
		return 0
	}
	tokens := int64((chars + 3) / 4)
	return tokens
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
