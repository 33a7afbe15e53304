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

// OpenAIConfig configures the OpenAI-compatible chat client.
type OpenAIConfig struct {
	// BaseURL is the API root (default: https://api.openai.com/v1).
	// Any OpenAI-compatible endpoint works.
	BaseURL string

	// APIKey authenticates requests; normally from OPENAI_API_KEY.
	APIKey string

	// Model is the chat model name (default: gpt-4o-mini)
	Model string

	// Timeout is the per-request timeout
	Timeout time.Duration
}

// DefaultOpenAIModel is used when no chat model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient generates completions via /chat/completions.
type OpenAIClient struct {
	client *http.Client
	config OpenAIConfig
	usage  UsageRecorder

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*OpenAIClient)(nil)

type openaiChatRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient creates an OpenAI-compatible chat client. usage may be nil.
func NewOpenAIClient(cfg OpenAIConfig, usage UsageRecorder) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIClient{
		client: &http.Client{},
		config: cfg,
		usage:  usage,
	}
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", synerrors.ProviderUnavailable("openai", fmt.Errorf("client is closed"))
	}
	c.mu.RUnlock()

	if c.config.APIKey == "" {
		return "", synerrors.New(synerrors.CodeInvalidInput, "openai API key is not configured", nil).
			WithSuggestion("set OPENAI_API_KEY")
	}

	body, err := json.Marshal(openaiChatRequest{
		Model:    c.config.Model,
		Messages: []openaiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", synerrors.Internal("failed to marshal chat request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", synerrors.Internal("failed to create chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", synerrors.ProviderUnavailable("openai", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return "", synerrors.RateLimited("openai", cause)
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", synerrors.New(synerrors.CodeInvalidInput, "openai rejected credentials", cause).
				WithSuggestion("check OPENAI_API_KEY")
		default:
			return "", synerrors.ProviderUnavailable("openai", cause)
		}
	}

	var result openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", synerrors.ProviderUnavailable("openai", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", synerrors.ProviderUnavailable("openai", fmt.Errorf("no choices in response"))
	}

	if c.usage != nil {
		c.usage.RecordUsage("openai", c.config.Model, "chat", result.Usage.TotalTokens)
	}
	return result.Choices[0].Message.Content, nil
}

// ModelName returns the model identifier.
func (c *OpenAIClient) ModelName() string { return c.config.Model }

// ProviderName returns "openai".
func (c *OpenAIClient) ProviderName() string { return "openai" }

// Available reports whether a key is configured; no probe request is
// made, cloud chat is pay-per-call.
func (c *OpenAIClient) Available(_ context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.config.APIKey != ""
}

// Close releases resources.
func (c *OpenAIClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
