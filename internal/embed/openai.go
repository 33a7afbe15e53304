package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint (default: https://api.openai.com)
	BaseURL string

	// APIKey is the bearer token; the provider is unavailable without it
	APIKey string

	// Model is the embedding model (default: text-embedding-3-large)
	Model string

	// Dimensions pins the output width; 0 looks up the model table
	Dimensions int

	// BatchSize is the maximum texts per API call
	BatchSize int

	// Timeout is the per-request timeout
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures
	MaxRetries int
}

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-large"

// OpenAIEmbedder generates embeddings using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *http.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIEmbedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedData `json:"data"`
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = ModelDimensions(cfg.Model)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &OpenAIEmbedder{
		client: &http.Client{},
		config: cfg,
	}
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, synerrors.ProviderUnavailable("openai", fmt.Errorf("no embedding returned"))
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, synerrors.ProviderUnavailable("openai", fmt.Errorf("embedder is closed"))
	}
	e.mu.RUnlock()

	if e.config.APIKey == "" {
		return nil, synerrors.ProviderUnavailable("openai", fmt.Errorf("no API key configured"))
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		cfg := synerrors.RetryConfig{
			MaxRetries:   e.config.MaxRetries,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}
		embeddings, err := synerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
			return e.doEmbed(ctx, batchTexts)
		})
		if err != nil {
			return nil, err
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{
		Model:          e.config.Model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, synerrors.Internal("failed to marshal embed request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, synerrors.Internal("failed to create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, synerrors.ProviderUnavailable("openai", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyProviderStatus("openai", resp.StatusCode, respBody)
	}

	var apiResult openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, synerrors.ProviderUnavailable("openai", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(apiResult.Data) != len(texts) {
		return nil, synerrors.ProviderUnavailable("openai",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResult.Data)))
	}

	// The API may return data out of order; index is authoritative
	sort.Slice(apiResult.Data, func(i, j int) bool {
		return apiResult.Data[i].Index < apiResult.Data[j].Index
	})

	embeddings := make([][]float32, len(apiResult.Data))
	for i, d := range apiResult.Data {
		embedding := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// ProviderName returns "openai".
func (e *OpenAIEmbedder) ProviderName() string {
	return "openai"
}

// Available reports whether a key is configured. No probe request is
// made; call-time failures fall through to the router's fallback chain.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.config.APIKey != ""
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
