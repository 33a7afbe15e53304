package preflight

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyEnv(string) string { return "" }

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		StorageRoot:  filepath.Join(dir, "storage"),
		DatabasePath: filepath.Join(dir, "synthesis.db"),
		Offline:      true,
	}
}

func TestRunAll_HealthyOffline(t *testing.T) {
	c := New(testConfig(t), WithEnv(emptyEnv))
	results := c.RunAll(context.Background())

	assert.False(t, c.HasCriticalFailures(results))
	// Missing cloud keys downgrade to warnings, never failures.
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus(results))

	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["storage"].Status)
	assert.Equal(t, StatusPass, byName["database"].Status)
	assert.Equal(t, StatusWarn, byName["openai_key"].Status)
	// Offline mode skips the network probe entirely.
	_, probed := byName["ollama"]
	assert.False(t, probed)
}

func TestRunAll_AllKeysPresent(t *testing.T) {
	env := func(k string) string { return "key-for-" + k }
	c := New(testConfig(t), WithEnv(env))
	results := c.CheckProviderKeys()
	for _, r := range results {
		assert.Equal(t, StatusPass, r.Status, r.Name)
	}
}

func TestCheckStorageWritable_MissingPath(t *testing.T) {
	c := New(Config{}, WithEnv(emptyEnv))
	r := c.CheckStorageWritable()
	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestCheckOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.OllamaHost = srv.URL
	c := New(cfg, WithEnv(emptyEnv))
	r := c.CheckOllama(context.Background())
	assert.Equal(t, StatusPass, r.Status)
	assert.Equal(t, "reachable", r.Message)
}

func TestCheckOllama_Unreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.OllamaHost = "http://127.0.0.1:1"
	c := New(cfg, WithEnv(emptyEnv))
	r := c.CheckOllama(context.Background())
	assert.Equal(t, StatusWarn, r.Status)
	assert.False(t, r.IsCritical())
}

func TestHealthMap(t *testing.T) {
	results := []CheckResult{
		{Name: "storage", Status: StatusPass, Message: "writable"},
		{Name: "ollama", Status: StatusWarn, Message: "unreachable"},
	}
	m := HealthMap(results)
	assert.Equal(t, "ok", m["storage"])
	assert.Equal(t, "unreachable", m["ollama"])
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(testConfig(t), WithOutput(&buf), WithEnv(emptyEnv))
	c.PrintResults(c.RunAll(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "Synthesis System Check")
	assert.Contains(t, out, "[PASS] storage: writable")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}

func TestMarkerLifecycle(t *testing.T) {
	dir := t.TempDir()

	require.True(t, NeedsCheck(dir))
	require.NoError(t, MarkPassed(dir))
	require.False(t, NeedsCheck(dir))

	age := MarkerAge(dir)
	assert.GreaterOrEqual(t, age, time.Duration(0))
	assert.Less(t, age, time.Minute)

	require.NoError(t, ClearMarker(dir))
	require.True(t, NeedsCheck(dir))
	require.NoError(t, ClearMarker(dir))
}
