// Package ollama generates devotionals with a local Ollama server through its
// OpenAI-compatible endpoint.
package ollama

import (
	"devotional/internal/core"
	"devotional/internal/providers"
)

// Registration provides factory registration for the Ollama generator.
var Registration = providers.Registration{
	Type: "ollama",
	New:  New,
}

const (
	defaultBaseURL     = "http://localhost:11434/v1"
	defaultModel       = "llama3"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.8
)

// New creates a new Ollama generator. Ollama ignores the API key; it is only
// sent when set, for servers behind an authenticating proxy.
func New(apiKey string, opts providers.ProviderOptions) core.Generator {
	return providers.NewChatGenerator(apiKey, opts, providers.ChatDefaults{
		Name:        "ollama",
		BaseURL:     defaultBaseURL,
		Model:       defaultModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
}
