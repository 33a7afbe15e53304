package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

type recordedUsage struct {
	provider, model, operation string
	tokens                     int64
}

type captureRecorder struct {
	records []recordedUsage
}

func (c *captureRecorder) RecordUsage(provider, model, operation string, tokens int64) {
	c.records = append(c.records, recordedUsage{provider, model, operation, tokens})
}

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3.1:8b", req.Model)

		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        "use riverpod",
			PromptEvalCount: 40,
			EvalCount:       12,
		})
	}))
	defer srv.Close()

	usage := &captureRecorder{}
	c := NewOllamaClient(OllamaConfig{Host: srv.URL}, usage)
	defer c.Close()

	out, err := c.Generate(context.Background(), "summarise")
	require.NoError(t, err)
	assert.Equal(t, "use riverpod", out)

	require.Len(t, usage.records, 1)
	assert.Equal(t, recordedUsage{"ollama", "llama3.1:8b", "chat", 52}, usage.records[0])
}

func TestOllamaClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Host: srv.URL}, nil)
	defer c.Close()

	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, synerrors.IsCode(err, synerrors.CodeProviderUnavailable))
}

func TestOllamaClient_Closed(t *testing.T) {
	c := NewOllamaClient(OllamaConfig{}, nil)
	require.NoError(t, c.Close())
	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		var resp openaiChatResponse
		resp.Choices = []struct {
			Message openaiMessage `json:"message"`
		}{{Message: openaiMessage{Role: "assistant", Content: "they disagree on retries"}}}
		resp.Usage.TotalTokens = 77
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	usage := &captureRecorder{}
	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"}, usage)
	defer c.Close()

	out, err := c.Generate(context.Background(), "compare these")
	require.NoError(t, err)
	assert.Equal(t, "they disagree on retries", out)

	require.Len(t, usage.records, 1)
	assert.Equal(t, recordedUsage{"openai", DefaultOpenAIModel, "chat", 77}, usage.records[0])
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{}, nil)
	defer c.Close()

	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, synerrors.IsCode(err, synerrors.CodeInvalidInput))
	assert.False(t, c.Available(context.Background()))
}

func TestOpenAIClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	defer c.Close()

	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, synerrors.IsCode(err, synerrors.CodeRateLimited))
}
