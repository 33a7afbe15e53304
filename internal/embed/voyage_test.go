package embed

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

func TestVoyageEmbedder_EmbedBatch(t *testing.T) {
	// Given a server checking the request shape
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer voyage-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "voyage-code-2", req["model"])
		assert.Equal(t, "document", req["input_type"])

		inputs, ok := req["input"].([]any)
		require.True(t, ok)

		data := make([]map[string]any, len(inputs))
		for i := range inputs {
			vec := make([]float64, 4)
			vec[i%4] = 1.0
			data[i] = map[string]any{"index": i, "embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	e := NewVoyageEmbedder(VoyageConfig{BaseURL: server.URL, APIKey: "voyage-key", Dimensions: 4})
	defer func() { _ = e.Close() }()

	// When embedding code chunks
	results, err := e.EmbedBatch(context.Background(), []string{"func a() {}", "func b() {}"})
	require.NoError(t, err)

	// Then each text gets a normalized vector
	require.Len(t, results, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, results[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, results[1])
}

func TestVoyageEmbedder_NoKeyFailsFast(t *testing.T) {
	e := NewVoyageEmbedder(VoyageConfig{})
	defer func() { _ = e.Close() }()

	_, err := e.Embed(context.Background(), "code")

	require.Error(t, err)
	assert.Equal(t, synerrors.CodeProviderUnavailable, synerrors.GetCode(err))
	assert.False(t, e.Available(context.Background()))
}

func TestVoyageEmbedder_Defaults(t *testing.T) {
	e := NewVoyageEmbedder(VoyageConfig{APIKey: "k"})
	defer func() { _ = e.Close() }()

	assert.Equal(t, "voyage-code-2", e.ModelName())
	assert.Equal(t, 1024, e.Dimensions())
	assert.Equal(t, "voyage", e.ProviderName())
	assert.True(t, e.Available(context.Background()))
}

func TestVoyageEmbedder_BatchSizeCapped(t *testing.T) {
	// Given a configured batch size over the API limit
	e := NewVoyageEmbedder(VoyageConfig{APIKey: "k", BatchSize: 500})
	defer func() { _ = e.Close() }()

	// Then the effective batch size respects the cap
	assert.LessOrEqual(t, e.config.BatchSize, voyageMaxBatch)
}
