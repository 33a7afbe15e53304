package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestSearch_SendsBodyAndDecodes(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"results": [{"chunk_id": 7, "content": "hit"}],
			"degraded": false,
			"search_metadata": {"mode": "hybrid", "vector_results": 5, "bm25_results": 3, "latency_ms": 12}
		}`))
	})

	resp, err := c.Search(context.Background(), &SearchRequest{
		Query:        "state management",
		CollectionID: "c1",
		SearchMode:   "hybrid",
		TrustLevels:  []string{"official"},
	})
	require.NoError(t, err)

	assert.Equal(t, "state management", got["query"])
	assert.Equal(t, "c1", got["collection_id"])
	assert.Equal(t, "hybrid", got["search_mode"])
	assert.Equal(t, []any{"official"}, got["trust_levels"])

	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(7), resp.Results[0].ChunkID)
	assert.Equal(t, "hybrid", resp.Metadata.Mode)
	assert.Equal(t, 5, resp.Metadata.VectorResults)
}

func TestErrorEnvelopeBecomesTypedError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND","message":"collection not found: c9","details":{"id":"c9"}}`))
	})

	_, err := c.Search(context.Background(), &SearchRequest{Query: "x", CollectionID: "c9"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "collection not found")

	var se *errors.SynthError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c9", se.Details["id"])
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream choked"))
	})

	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))
	assert.Contains(t, err.Error(), "502")
}

func TestIngest_Multipart(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ingest", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "c1", r.FormValue("collection_id"))
		require.Len(t, r.MultipartForm.File["files[]"], 2)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"documents":[
			{"document_id":"d1","file_name":"a.md","status":"pending"},
			{"document_id":"d2","file_name":"b.dart","status":"pending"}
		]}`))
	})

	docs, err := c.Ingest(context.Background(), "c1", []Upload{
		{Name: "a.md", Content: strings.NewReader("# a")},
		{Name: "b.dart", Content: strings.NewReader("class B {}")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].DocumentID)
	assert.Equal(t, "pending", docs[0].Status)
}

func TestIngest_RequiresFiles(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.Ingest(context.Background(), "c1", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestCollections_RoundTrip(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/collections":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"c1","name":"flutter-docs"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/collections":
			_, _ = w.Write([]byte(`{"collections":[{"id":"c1","name":"flutter-docs"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/c1":
			_, _ = w.Write([]byte(`{"deleted":"c1"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	created, err := c.CreateCollection(ctx, "flutter-docs", nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", created.ID)

	cols, err := c.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "flutter-docs", cols[0].Name)

	require.NoError(t, c.DeleteCollection(ctx, "c1"))
}

func TestRelatedFiles(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/d1/related-files", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"file_path": "lib/services/auth.dart",
			"related_files": {"imports": ["lib/models/user.dart"], "tested_by": ["test/services/auth_test.dart"]}
		}`))
	})

	rel, err := c.RelatedFiles(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "lib/services/auth.dart", rel.FilePath)
	require.NotNil(t, rel.Related)
	assert.Equal(t, []string{"lib/models/user.dart"}, rel.Related.Imports)
}

func TestCosts(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/costs/summary":
			_, _ = w.Write([]byte(`{"month_to_date_usd":"1.25","budget_usd":"10","budget_used_pct":12.5,"fallback_active":false}`))
		case "/costs/history":
			assert.Equal(t, "7", r.URL.Query().Get("days"))
			_, _ = w.Write([]byte(`{"history":[]}`))
		case "/costs/alerts/4/ack":
			_, _ = w.Write([]byte(`{"acknowledged":4}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	summary, err := c.CostsSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.25", summary.MonthToDateUSD.String())
	assert.InDelta(t, 12.5, summary.BudgetUsedPct, 1e-9)

	_, err = c.CostsHistory(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, c.AcknowledgeAlert(ctx, 4))
}

func TestHealth(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded","checks":{"ollama":"unreachable","storage":"ok"}}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "unreachable", h.Checks["ollama"])
}

func TestServerUnreachable(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeProviderUnavailable, errors.GetCode(err))
}
