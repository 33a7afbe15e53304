package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://localhost:11434"

// ollamaProbeTimeout bounds the reachability check; a healthy local
// daemon answers in milliseconds.
const ollamaProbeTimeout = 3 * time.Second

// CheckOllama probes the Ollama API. A missing daemon is a warning,
// not a failure: documentation embedding degrades to the static
// provider and synthesis verdicts are skipped.
func (c *Checker) CheckOllama(ctx context.Context) CheckResult {
	result := CheckResult{Name: "ollama", Required: false}

	host := c.cfg.OllamaHost
	if host == "" {
		host = defaultOllamaHost
	}
	url := strings.TrimRight(host, "/") + "/api/tags"

	ctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid host %q", host)
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "unreachable"
		result.Details = fmt.Sprintf("%s: %v", host, err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}
	result.Status = StatusPass
	result.Message = "reachable"
	result.Details = host
	return result
}

// providerKeys lists the cloud credentials and what each one unlocks.
var providerKeys = []struct {
	name   string
	envVar string
	role   string
}{
	{"openai_key", "OPENAI_API_KEY", "writing embeddings"},
	{"voyage_key", "VOYAGE_API_KEY", "code embeddings"},
	{"cohere_key", "COHERE_API_KEY", "cloud re-ranking"},
}

// CheckProviderKeys reports which cloud credentials are present.
// Absent keys are warnings; every cloud provider has a local fallback.
func (c *Checker) CheckProviderKeys() []CheckResult {
	results := make([]CheckResult, 0, len(providerKeys))
	for _, k := range providerKeys {
		r := CheckResult{Name: k.name, Required: false}
		if c.getenv(k.envVar) != "" {
			r.Status = StatusPass
			r.Message = "present"
		} else {
			r.Status = StatusWarn
			r.Message = fmt.Sprintf("%s not set (%s falls back)", k.envVar, k.role)
		}
		results = append(results, r)
	}
	return results
}
