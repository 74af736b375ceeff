// Package groq generates devotionals with the Groq chat completions API.
package groq

import (
	"devotional/internal/core"
	"devotional/internal/providers"
)

// Registration provides factory registration for the Groq generator.
var Registration = providers.Registration{
	Type: "groq",
	New:  New,
}

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModel       = "llama3-70b-8192"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.8
)

// Provider implements core.Generator for Groq
type Provider = providers.ChatGenerator

// New creates a new Groq generator.
func New(apiKey string, opts providers.ProviderOptions) core.Generator {
	return providers.NewChatGenerator(apiKey, opts, providers.ChatDefaults{
		Name:        "groq",
		BaseURL:     defaultBaseURL,
		Model:       defaultModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
}
