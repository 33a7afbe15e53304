// Package client is a typed Go client for the Synthesis HTTP API.
//
// The CLI uses it to talk to a running server, and it doubles as the
// API surface for other Go programs embedding Synthesis.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/synthesis-kb/synthesis/internal/costs"
	"github.com/synthesis-kb/synthesis/internal/errors"
	"github.com/synthesis-kb/synthesis/internal/relation"
	"github.com/synthesis-kb/synthesis/internal/search"
	"github.com/synthesis-kb/synthesis/internal/store"
	"github.com/synthesis-kb/synthesis/internal/synthesis"
)

// DefaultTimeout bounds a single API call. Ingestion uploads get a
// longer deadline from the caller's context.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the server address, e.g. "http://127.0.0.1:8080".
	BaseURL string
	// Timeout applies per request when the context carries no deadline.
	Timeout time.Duration
	// HTTPClient overrides the underlying transport when set.
	HTTPClient *http.Client
}

// Client calls the Synthesis HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given server address.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.InvalidInput("base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
	}, nil
}

// Health reports the server's component statuses.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.call(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCollection calls POST /collections.
func (c *Client) CreateCollection(ctx context.Context, name string, metadata map[string]string) (*store.Collection, error) {
	body := map[string]any{"name": name}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var out store.Collection
	if err := c.call(ctx, http.MethodPost, "/collections", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollections calls GET /collections.
func (c *Client) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	var out struct {
		Collections []*store.Collection `json:"collections"`
	}
	if err := c.call(ctx, http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// DeleteCollection calls DELETE /collections/{id}.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/collections/"+id, nil, nil)
}

// ListDocuments calls GET /documents for one collection.
func (c *Client) ListDocuments(ctx context.Context, collectionID string) ([]*store.Document, error) {
	var out struct {
		Documents []*store.Document `json:"documents"`
	}
	path := "/documents?collection_id=" + collectionID
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// DeleteDocument calls DELETE /documents/{id}.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/documents/"+id, nil, nil)
}

// RelatedFiles is the related-files response for one document.
type RelatedFiles struct {
	FilePath string            `json:"file_path"`
	Related  *relation.Related `json:"related_files"`
}

// RelatedFiles calls GET /documents/{id}/related-files.
func (c *Client) RelatedFiles(ctx context.Context, documentID string) (*RelatedFiles, error) {
	var out RelatedFiles
	path := "/documents/" + documentID + "/related-files"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload is one file in an ingestion request.
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// IngestedDocument is the accepted-state record for one upload.
type IngestedDocument struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
}

// Ingest calls POST /ingest with a multipart upload. Processing is
// asynchronous; the returned documents start out pending.
func (c *Client) Ingest(ctx context.Context, collectionID string, files []Upload) ([]IngestedDocument, error) {
	if len(files) == 0 {
		return nil, errors.InvalidInput("at least one file is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("collection_id", collectionID); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build upload")
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files[]", f.Name)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to build upload")
		}
		if _, err := io.Copy(fw, f.Content); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to read upload content")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", &buf)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Documents []IngestedDocument `json:"documents"`
	}
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// SearchRequest mirrors the POST /search body.
type SearchRequest struct {
	Query         string   `json:"query"`
	CollectionID  string   `json:"collection_id"`
	TopK          int      `json:"top_k,omitempty"`
	SearchMode    string   `json:"search_mode,omitempty"`
	Rerank        bool     `json:"rerank,omitempty"`
	TrustLevels   []string `json:"trust_levels,omitempty"`
	MinTrustScore float64  `json:"min_trust_score,omitempty"`
	VectorWeight  float64  `json:"vector_weight,omitempty"`
	BM25Weight    float64  `json:"bm25_weight,omitempty"`
}

// SearchMetadata describes how a search was executed.
type SearchMetadata struct {
	Mode          string `json:"mode"`
	VectorResults int    `json:"vector_results"`
	BM25Results   int    `json:"bm25_results"`
	LatencyMS     int64  `json:"latency_ms"`
}

// SearchResponse is the POST /search result set.
type SearchResponse struct {
	Results      []*search.Result `json:"results"`
	Degraded     bool             `json:"degraded"`
	FallbackUsed bool             `json:"fallback_used"`
	Metadata     SearchMetadata   `json:"search_metadata"`
}

// Search calls POST /search.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.call(ctx, http.MethodPost, "/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Synthesize calls POST /synthesis/compare.
func (c *Client) Synthesize(ctx context.Context, req *synthesis.Request) (*synthesis.Response, error) {
	var out synthesis.Response
	if err := c.call(ctx, http.MethodPost, "/synthesis/compare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CostsSummary calls GET /costs/summary.
func (c *Client) CostsSummary(ctx context.Context) (*costs.Summary, error) {
	var out costs.Summary
	if err := c.call(ctx, http.MethodGet, "/costs/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CostsHistory calls GET /costs/history.
func (c *Client) CostsHistory(ctx context.Context, days int) ([]store.DailySpend, error) {
	var out struct {
		History []store.DailySpend `json:"history"`
	}
	path := fmt.Sprintf("/costs/history?days=%d", days)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// CostsAlerts calls GET /costs/alerts.
func (c *Client) CostsAlerts(ctx context.Context, limit int) ([]*store.BudgetAlert, error) {
	var out struct {
		Alerts []*store.BudgetAlert `json:"alerts"`
	}
	path := fmt.Sprintf("/costs/alerts?limit=%d", limit)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// AcknowledgeAlert calls POST /costs/alerts/{id}/ack.
func (c *Client) AcknowledgeAlert(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/costs/alerts/%d/ack", id)
	return c.call(ctx, http.MethodPost, path, nil, nil)
}

// call sends a JSON request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode request")
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.ProviderUnavailable("server", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to read response")
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode response")
	}
	return nil
}

// apiError rebuilds a typed error from the server's envelope so
// callers can branch on the same codes as in-process use.
func apiError(status int, data []byte) error {
	var env struct {
		Error   string            `json:"error"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Error == "" {
		return errors.New(errors.CodeInternal, fmt.Sprintf("server returned HTTP %d", status), nil)
	}
	e := errors.New(env.Error, env.Message, nil)
	for k, v := range env.Details {
		e = e.WithDetail(k, v)
	}
	return e
}
