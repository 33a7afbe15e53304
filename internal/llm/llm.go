// Package llm provides a minimal chat-completion client used by the
// synthesis engine for approach summaries and conflict verdicts.
package llm

import (
	"context"
	"time"
)

// Client generates one completion for one prompt. Implementations must
// be safe for concurrent use.
type Client interface {
	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the model identifier.
	ModelName() string

	// ProviderName returns the provider identifier ("ollama", "openai").
	ProviderName() string

	// Available reports whether the provider can serve requests now.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// UsageRecorder receives token counts after each successful completion.
// Satisfied by the cost tracker; nil recorders are allowed.
type UsageRecorder interface {
	RecordUsage(provider, model, operation string, tokens int64)
}

// DefaultTimeout bounds one completion request.
const DefaultTimeout = 30 * time.Second
