package embed

import (
	"fmt"
	"time"
)

// RouterConfig carries everything needed to build the provider set and
// routing table. Callers populate it from the application config.
type RouterConfig struct {
	OllamaHost  string
	OllamaModel string

	OpenAIKey   string
	OpenAIModel string

	VoyageKey   string
	VoyageModel string

	// Route overrides per content kind. Empty values keep the defaults
	// (code to voyage, writing to openai, documentation to ollama).
	CodeProvider    string
	WritingProvider string
	DocProvider     string

	// CacheSize bounds the per-provider embedding cache.
	CacheSize int

	// Timeout applies to individual provider requests.
	Timeout time.Duration
}

// NewRouterFromConfig builds all providers and wires them into a
// router. Remote providers are constructed even without credentials;
// they report unavailable and the router falls back past them.
func NewRouterFromConfig(cfg RouterConfig, gate BudgetGate, usage UsageRecorder) (*Router, error) {
	providers := make(map[string]Embedder, 4)

	ollama := NewOllamaEmbedder(OllamaConfig{
		Host:    cfg.OllamaHost,
		Model:   cfg.OllamaModel,
		Timeout: cfg.Timeout,
	})
	cachedOllama, err := NewCachedEmbedder(ollama, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap ollama embedder: %w", err)
	}
	providers[ProviderOllama] = cachedOllama

	openai := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.Timeout,
	})
	cachedOpenAI, err := NewCachedEmbedder(openai, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap openai embedder: %w", err)
	}
	providers[ProviderOpenAI] = cachedOpenAI

	voyage := NewVoyageEmbedder(VoyageConfig{
		APIKey:  cfg.VoyageKey,
		Model:   cfg.VoyageModel,
		Timeout: cfg.Timeout,
	})
	cachedVoyage, err := NewCachedEmbedder(voyage, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap voyage embedder: %w", err)
	}
	providers[ProviderVoyage] = cachedVoyage

	// Static is deterministic and allocation-cheap, caching it would
	// only duplicate the vectors.
	providers[ProviderStatic] = NewStaticEmbedder()

	routes := map[ContentKind]string{
		KindCode:          cfg.CodeProvider,
		KindWriting:       cfg.WritingProvider,
		KindDocumentation: cfg.DocProvider,
	}

	return NewRouter(providers, routes, gate, usage), nil
}
