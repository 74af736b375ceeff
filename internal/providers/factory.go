// Package providers builds the devotional generator named in configuration.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"devotional/config"
	"devotional/internal/core"
	"devotional/internal/pkg/llmclient"
)

// ProviderOptions carries the settings every generator accepts.
type ProviderOptions struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64

	// HTTPClient is used for upstream calls; nil selects the shared default.
	HTTPClient *http.Client

	// CircuitBreaker is disabled when nil.
	CircuitBreaker *llmclient.CircuitBreakerConfig
}

// Builder creates a generator from an API key and options.
type Builder func(apiKey string, opts ProviderOptions) core.Generator

// Registration ties a generator type name to its builder.
type Registration struct {
	Type string
	New  Builder
}

// ProviderFactory holds the registered generator builders.
type ProviderFactory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{builders: make(map[string]Builder)}
}

// Register adds or replaces the builder for providerType.
func (f *ProviderFactory) Register(providerType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[providerType] = builder
}

// Add registers reg.
func (f *ProviderFactory) Add(reg Registration) {
	f.Register(reg.Type, reg.New)
}

// Create instantiates the generator configured in cfg.
func (f *ProviderFactory) Create(cfg config.GeneratorConfig, opts ProviderOptions) (core.Generator, error) {
	f.mu.RLock()
	builder, ok := f.builders[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown generator type: %s (registered: %v)", cfg.Type, f.ListRegistered())
	}

	if opts.BaseURL == "" {
		opts.BaseURL = cfg.BaseURL
	}
	if opts.Model == "" {
		opts.Model = cfg.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = cfg.Temperature
	}
	return builder(cfg.APIKey, opts), nil
}

// ListRegistered returns the registered generator types in sorted order.
func (f *ProviderFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
