package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/synthesis-kb/synthesis/internal/embed"
	"github.com/synthesis-kb/synthesis/internal/errors"
)

const (
	cohereBaseURL      = "https://api.cohere.com"
	cohereDefaultModel = "rerank-english-v3.0"
	cohereTimeout      = 30 * time.Second
)

// CohereReranker calls the Cohere v2 rerank endpoint. One request unit is
// recorded per call.
type CohereReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	usage   embed.UsageRecorder

	mu     sync.Mutex
	closed bool
}

// CohereOption mutates construction.
type CohereOption func(*CohereReranker)

func WithCohereBaseURL(u string) CohereOption {
	return func(c *CohereReranker) { c.baseURL = u }
}

func WithCohereModel(m string) CohereOption {
	return func(c *CohereReranker) {
		if m != "" {
			c.model = m
		}
	}
}

// NewCohereReranker builds the cloud provider; usage may be nil.
func NewCohereReranker(apiKey string, usage embed.UsageRecorder, opts ...CohereOption) *CohereReranker {
	c := &CohereReranker{
		apiKey:  apiKey,
		model:   cohereDefaultModel,
		baseURL: cohereBaseURL,
		client:  &http.Client{Timeout: cohereTimeout},
		usage:   usage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CohereReranker) Name() string { return "cohere" }

func (c *CohereReranker) Available(_ context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey != "" && !c.closed
}

type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Message string `json:"message"`
}

func (c *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if !c.Available(ctx) {
		return nil, errors.ProviderUnavailable("cohere", nil)
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(documents) {
		topK = len(documents)
	}

	body, err := json.Marshal(cohereRerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      topK,
	})
	if err != nil {
		return nil, errors.Internal("marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal("build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.ProviderUnavailable("cohere", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.ProviderUnavailable("cohere", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.RateLimited("cohere", nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, errors.ProviderUnavailable("cohere",
			fmt.Errorf("status %d: check COHERE_API_KEY", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, errors.ProviderUnavailable("cohere",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	var parsed cohereRerankResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.ProviderUnavailable("cohere", fmt.Errorf("decode response: %w", err))
	}

	out := make([]RerankResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		out = append(out, RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}

	if c.usage != nil {
		c.usage.RecordUsage("cohere", c.model, "rerank", 0)
	}
	return out, nil
}

func (c *CohereReranker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
