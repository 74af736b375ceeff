package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"devotional/internal/core"
	"devotional/internal/httpclient"
	"devotional/internal/pkg/llmclient"
)

// ChatDefaults are the per-provider values used when ProviderOptions leaves
// a field unset.
type ChatDefaults struct {
	Name        string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatGenerator implements core.Generator over an OpenAI-compatible
// /chat/completions endpoint in JSON mode.
type ChatGenerator struct {
	client      *llmclient.Client
	name        string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// NewChatGenerator creates a generator for one OpenAI-compatible provider.
func NewChatGenerator(apiKey string, opts ProviderOptions, d ChatDefaults) *ChatGenerator {
	g := &ChatGenerator{
		name:        d.Name,
		apiKey:      apiKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	if g.model == "" {
		g.model = d.Model
	}
	if g.maxTokens <= 0 {
		g.maxTokens = d.MaxTokens
	}
	if g.temperature <= 0 {
		g.temperature = d.Temperature
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = d.BaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}

	cfg := llmclient.DefaultConfig(d.Name, strings.TrimRight(baseURL, "/"))
	cfg.CircuitBreaker = opts.CircuitBreaker
	g.client = llmclient.NewWithHTTPClient(httpClient, cfg, g.setHeaders)
	return g
}

// SetBaseURL allows configuring a custom base URL for the provider
func (g *ChatGenerator) SetBaseURL(url string) {
	g.client.SetBaseURL(url)
}

// Name implements core.Generator
func (g *ChatGenerator) Name() string {
	return g.name
}

// Model returns the model requested upstream
func (g *ChatGenerator) Model() string {
	return g.model
}

// setHeaders sends the bearer token when one is configured
func (g *ChatGenerator) setHeaders(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

// Generate sends prompt as a single user message in JSON mode and returns
// the trimmed content of the first choice.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	maxTokens := g.maxTokens
	req := &core.ChatRequest{
		Model: g.model,
		Messages: []core.Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens:      &maxTokens,
		Temperature:    &temperature,
		ResponseFormat: &core.ResponseFormat{Type: "json_object"},
	}

	resp, err := g.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req,
	})
	if err != nil {
		return "", err
	}

	if !gjson.ValidBytes(resp.Body) {
		return "", core.NewMalformedResponseError(g.name, "response body is not valid JSON", nil)
	}
	content := gjson.GetBytes(resp.Body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return "", core.NewMalformedResponseError(g.name, "response has no choices[0].message.content", nil)
	}
	return strings.TrimSpace(content.String()), nil
}
