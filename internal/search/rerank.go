package search

import (
	"context"
	"log/slog"
)

// RerankResult scores one input document. Index refers to the input slice.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker reorders candidates by cross-encoder relevance to the query.
type Reranker interface {
	// Rerank returns the topK most relevant documents, best first.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)
	Name() string
	Available(ctx context.Context) bool
	Close() error
}

// FallbackGate mirrors the cost tracker's budget state; when active, paid
// re-ranking is skipped in favour of the local provider.
type FallbackGate interface {
	FallbackActive() bool
}

// chain tries each provider in order, falling through on failure. A total
// failure is reported to the engine, which returns the fused order.
type chain struct {
	providers []Reranker
	log       *slog.Logger
}

// NewChain builds the provider selection: explicit config first, then cloud
// when a key is present and the budget gate allows, then local.
func NewChain(log *slog.Logger, providers ...Reranker) Reranker {
	var active []Reranker
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &chain{providers: active, log: log}
}

func (c *chain) Name() string { return "chain" }

func (c *chain) Available(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.Available(ctx) {
			return true
		}
	}
	return false
}

func (c *chain) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Available(ctx) {
			continue
		}
		results, err := p.Rerank(ctx, query, documents, topK)
		if err != nil {
			c.log.Warn("reranker failed, trying next provider",
				"provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		return results, nil
	}
	if lastErr == nil {
		lastErr = errNoReranker
	}
	return nil, lastErr
}

func (c *chain) Close() error {
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type rerankerUnavailable struct{}

func (rerankerUnavailable) Error() string { return "no reranker provider available" }

var errNoReranker = rerankerUnavailable{}

// gatedReranker suppresses a paid provider while the budget fallback flag
// is set.
type gatedReranker struct {
	Reranker
	gate FallbackGate
}

// Gated wraps a paid reranker behind the budget gate.
func Gated(r Reranker, gate FallbackGate) Reranker {
	if gate == nil {
		return r
	}
	return &gatedReranker{Reranker: r, gate: gate}
}

func (g *gatedReranker) Available(ctx context.Context) bool {
	if g.gate.FallbackActive() {
		return false
	}
	return g.Reranker.Available(ctx)
}
