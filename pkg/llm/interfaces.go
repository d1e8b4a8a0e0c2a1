// Package llm is the generation gateway: a single text-in, text-out call
// backed by OpenAI-compatible or Anthropic endpoints.
package llm

import (
	"context"
)

// Mode selects how a generation call is served.
type Mode string

const (
	// ModePlain is a free-text completion.
	ModePlain Mode = "plain"
	// ModeSearch asks for search-augmented output. Results may be plausible but unverified.
	ModeSearch Mode = "search"
)

// LLMClient defines the generation gateway used by every component.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// Generate runs one completion and returns normalized plain text.
	Generate(ctx context.Context, instructions, input string, mode Mode) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure backends implement LLMClient at compile time.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*BreakerClient)(nil)
)
