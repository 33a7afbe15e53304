package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

// Provider names used for routing and usage attribution.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderVoyage = "voyage"
	ProviderStatic = "static"
)

// paidProviders are the providers the budget gate can force away from.
var paidProviders = map[string]bool{
	ProviderOpenAI: true,
	ProviderVoyage: true,
}

// BudgetGate reports whether spending has crossed the monthly limit.
// When active, the router refuses paid providers and falls back to
// local ones until the gate clears.
type BudgetGate interface {
	FallbackActive() bool
}

// UsageRecorder receives usage events after successful provider calls.
// Implementations must not block.
type UsageRecorder interface {
	RecordUsage(provider, model, operation string, tokens int64)
}

// RouteOptions control a single routing decision.
type RouteOptions struct {
	// Kind selects the default route when no override is given.
	Kind ContentKind

	// Override names a specific provider, bypassing kind-based routing.
	// Collections can pin a provider through their metadata.
	Override string

	// DimHint, when non-zero, requires the selected embedder to produce
	// vectors of exactly this dimension. A mismatch is a conflict, not
	// a fallback, because mixing dimensions within a document corrupts
	// similarity scores.
	DimHint int
}

// Selection is the outcome of a routing decision.
type Selection struct {
	Embedder Embedder
	Provider string

	// Degraded is true when the preferred provider was substituted,
	// either by the budget gate or by an availability fallback.
	Degraded bool
	Reason   string
}

// Router picks an embedding provider per request based on content kind,
// per-collection overrides, budget state, and provider availability.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Embedder
	routes    map[ContentKind]string
	gate      BudgetGate
	usage     UsageRecorder
	closed    bool
}

// NewRouter creates a router over the given providers. Routes map each
// content kind to a provider name; missing kinds default to ollama.
// Gate and usage may be nil.
func NewRouter(providers map[string]Embedder, routes map[ContentKind]string, gate BudgetGate, usage UsageRecorder) *Router {
	merged := map[ContentKind]string{
		KindCode:          ProviderVoyage,
		KindWriting:       ProviderOpenAI,
		KindDocumentation: ProviderOllama,
	}
	for kind, name := range routes {
		if name != "" {
			merged[kind] = name
		}
	}

	return &Router{
		providers: providers,
		routes:    merged,
		gate:      gate,
		usage:     usage,
	}
}

// Pick selects an embedder for the given options.
//
// Order of decisions: explicit override, then the kind route. If the
// budget gate is active and the choice is a paid provider, the choice
// is replaced with ollama. If the choice is unavailable, the fallback
// chain (ollama, then static) is walked. Any substitution marks the
// selection degraded.
func (r *Router) Pick(ctx context.Context, opts RouteOptions) (*Selection, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, synerrors.Internal("embedding router is closed", nil)
	}
	r.mu.RUnlock()

	preferred := opts.Override
	if preferred == "" {
		preferred = r.routes[opts.Kind]
	}
	if preferred == "" {
		preferred = ProviderOllama
	}
	if _, ok := r.providers[preferred]; !ok {
		return nil, synerrors.InvalidInputf("unknown embedding provider %q", preferred).
			WithDetail("provider", preferred)
	}

	degraded := false
	reason := ""

	if r.gate != nil && r.gate.FallbackActive() && paidProviders[preferred] {
		slog.Debug("budget gate active, routing to local provider",
			"preferred", preferred)
		preferred = ProviderOllama
		degraded = true
		reason = "monthly budget limit reached, using local provider"
	}

	for _, name := range fallbackChain(preferred) {
		embedder, ok := r.providers[name]
		if !ok {
			continue
		}
		if !embedder.Available(ctx) {
			slog.Debug("embedding provider unavailable", "provider", name)
			continue
		}

		if name != preferred && !degraded {
			degraded = true
			reason = fmt.Sprintf("provider %s unavailable, using %s", preferred, name)
		}

		if opts.DimHint > 0 && embedder.Dimensions() != opts.DimHint {
			return nil, synerrors.Conflict(
				fmt.Sprintf("embedding dimension mismatch: provider %s produces %d dimensions, document requires %d",
					name, embedder.Dimensions(), opts.DimHint)).
				WithDetail("provider", name).
				WithSuggestion("re-ingest the document to re-embed all chunks at the new dimension")
		}

		return &Selection{
			Embedder: &meteredEmbedder{inner: embedder, usage: r.usage},
			Provider: name,
			Degraded: degraded,
			Reason:   reason,
		}, nil
	}

	return nil, synerrors.ProviderUnavailable("embedding", fmt.Errorf("no provider available for %s", preferred))
}

// Provider returns a named provider without routing logic, or nil.
func (r *Router) Provider(name string) Embedder {
	return r.providers[name]
}

// Routes returns a copy of the kind-to-provider routing table.
func (r *Router) Routes() map[ContentKind]string {
	out := make(map[ContentKind]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

// Status reports availability per provider.
func (r *Router) Status(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(r.providers))
	for name, embedder := range r.providers {
		out[name] = embedder.Available(ctx)
	}
	return out
}

// Close closes all providers. Safe to call more than once.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for name, embedder := range r.providers {
		if err := embedder.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s embedder: %w", name, err)
		}
	}
	return firstErr
}

// fallbackChain returns the providers to try in order, starting with
// the preferred one and ending at static, which never fails.
func fallbackChain(preferred string) []string {
	chain := []string{preferred}
	if preferred != ProviderOllama {
		chain = append(chain, ProviderOllama)
	}
	if preferred != ProviderStatic {
		chain = append(chain, ProviderStatic)
	}
	return chain
}

// meteredEmbedder records usage after successful provider calls.
type meteredEmbedder struct {
	inner Embedder
	usage UsageRecorder
}

var _ Embedder = (*meteredEmbedder)(nil)

func (m *meteredEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := m.inner.Embed(ctx, text)
	if err == nil && m.usage != nil {
		m.usage.RecordUsage(m.inner.ProviderName(), m.inner.ModelName(), "embedding", EstimateTokens(text))
	}
	return embedding, err
}

func (m *meteredEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := m.inner.EmbedBatch(ctx, texts)
	if err == nil && m.usage != nil {
		m.usage.RecordUsage(m.inner.ProviderName(), m.inner.ModelName(), "embedding", EstimateTokens(texts...))
	}
	return embeddings, err
}

func (m *meteredEmbedder) Dimensions() int                    { return m.inner.Dimensions() }
func (m *meteredEmbedder) ModelName() string                  { return m.inner.ModelName() }
func (m *meteredEmbedder) ProviderName() string               { return m.inner.ProviderName() }
func (m *meteredEmbedder) Available(ctx context.Context) bool { return m.inner.Available(ctx) }
func (m *meteredEmbedder) Close() error                       { return m.inner.Close() }
