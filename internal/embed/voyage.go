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

// VoyageConfig configures the Voyage AI embedding provider, used for
// the code route.
type VoyageConfig struct {
	// BaseURL overrides the API endpoint (default: https://api.voyageai.com)
	BaseURL string

	// APIKey is the bearer token; the provider is unavailable without it
	APIKey string

	// Model is the embedding model (default: voyage-code-2)
	Model string

	// Dimensions pins the output width; 0 looks up the model table
	Dimensions int

	// BatchSize is the maximum texts per API call (Voyage caps at 128)
	BatchSize int

	// Timeout is the per-request timeout
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures
	MaxRetries int
}

// DefaultVoyageModel is used when no model is configured.
const DefaultVoyageModel = "voyage-code-2"

// voyageMaxBatch is the API's documented input limit.
const voyageMaxBatch = 128

// VoyageEmbedder generates embeddings using the Voyage AI API.
type VoyageEmbedder struct {
	client *http.Client
	config VoyageConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*VoyageEmbedder)(nil)

type voyageEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageEmbedData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type voyageEmbedResponse struct {
	Data []voyageEmbedData `json:"data"`
}

// NewVoyageEmbedder creates a Voyage embedder.
func NewVoyageEmbedder(cfg VoyageConfig) *VoyageEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.voyageai.com"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVoyageModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = ModelDimensions(cfg.Model)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > voyageMaxBatch {
		cfg.BatchSize = voyageMaxBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &VoyageEmbedder{
		client: &http.Client{},
		config: cfg,
	}
}

// Embed generates embedding for a single text.
func (e *VoyageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, synerrors.ProviderUnavailable("voyage", fmt.Errorf("no embedding returned"))
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *VoyageEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, synerrors.ProviderUnavailable("voyage", fmt.Errorf("embedder is closed"))
	}
	e.mu.RUnlock()

	if e.config.APIKey == "" {
		return nil, synerrors.ProviderUnavailable("voyage", fmt.Errorf("no API key configured"))
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

func (e *VoyageEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(voyageEmbedRequest{
		Model:     e.config.Model,
		Input:     texts,
		InputType: "document",
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
		return nil, synerrors.ProviderUnavailable("voyage", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyProviderStatus("voyage", resp.StatusCode, respBody)
	}

	var apiResult voyageEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, synerrors.ProviderUnavailable("voyage", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(apiResult.Data) != len(texts) {
		return nil, synerrors.ProviderUnavailable("voyage",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResult.Data)))
	}

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
func (e *VoyageEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *VoyageEmbedder) ModelName() string {
	return e.config.Model
}

// ProviderName returns "voyage".
func (e *VoyageEmbedder) ProviderName() string {
	return "voyage"
}

// Available reports whether a key is configured.
func (e *VoyageEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.config.APIKey != ""
}

// Close releases resources.
func (e *VoyageEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
