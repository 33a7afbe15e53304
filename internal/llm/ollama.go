package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

// OllamaConfig configures the Ollama chat client.
type OllamaConfig struct {
	// Host is the Ollama API base URL (default: http://localhost:11434)
	Host string

	// Model is the chat model name (default: llama3.1:8b)
	Model string

	// Timeout is the per-request timeout
	Timeout time.Duration
}

// DefaultOllamaModel is used when no chat model is configured.
const DefaultOllamaModel = "llama3.1:8b"

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient generates completions via Ollama's /api/generate.
type OllamaClient struct {
	client *http.Client
	config OllamaConfig
	usage  UsageRecorder

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*OllamaClient)(nil)

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

// NewOllamaClient creates an Ollama chat client. usage may be nil.
func NewOllamaClient(cfg OllamaConfig, usage UsageRecorder) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = defaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaClient{
		client: &http.Client{},
		config: cfg,
		usage:  usage,
	}
}

// Generate returns the completion for prompt with streaming disabled.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", synerrors.ProviderUnavailable("ollama", fmt.Errorf("client is closed"))
	}
	c.mu.RUnlock()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", synerrors.Internal("failed to marshal generate request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", synerrors.Internal("failed to create generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", synerrors.ProviderUnavailable("ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", synerrors.RateLimited("ollama", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
		}
		return "", synerrors.ProviderUnavailable("ollama",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", synerrors.ProviderUnavailable("ollama", fmt.Errorf("failed to decode response: %w", err))
	}

	if c.usage != nil {
		c.usage.RecordUsage("ollama", c.config.Model, "chat", result.PromptEvalCount+result.EvalCount)
	}
	return result.Response, nil
}

// ModelName returns the model identifier.
func (c *OllamaClient) ModelName() string { return c.config.Model }

// ProviderName returns "ollama".
func (c *OllamaClient) ProviderName() string { return "ollama" }

// Available checks if Ollama answers on /api/tags.
func (c *OllamaClient) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (c *OllamaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
