// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the devotional service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"devotional/config"
	"devotional/internal/bible"
	"devotional/internal/cache"
	"devotional/internal/core"
	"devotional/internal/devotional"
	"devotional/internal/httpclient"
	"devotional/internal/observability"
	"devotional/internal/pkg/llmclient"
	"devotional/internal/prompt"
	"devotional/internal/providers"
	"devotional/internal/providers/iqbible"
	"devotional/internal/server"
	"devotional/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	store     storage.Store
	cache     *cache.Manager
	generator core.Generator
	service   *devotional.Service
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the loaded application configuration.
	AppConfig *config.Config

	// Factory provides the ProviderFactory used to construct the generator.
	Factory *providers.ProviderFactory

	// Registerer receives the Prometheus collectors when metrics are enabled.
	// Nil selects prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig
	if err := appCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := appCfg.ValidateRemote(); err != nil {
		return nil, err
	}

	var cacheHooks cache.Hooks
	var fetchHooks devotional.Hooks
	if appCfg.Metrics.Enabled {
		metrics := observability.NewMetrics(cfg.Registerer)
		cacheHooks = metrics.CacheHooks()
		fetchHooks = metrics.FetchHooks()
	}

	store, cacheMgr, err := openCache(ctx, appCfg, cacheHooks)
	if err != nil {
		return nil, err
	}

	app := &App{
		config: appCfg,
		store:  store,
		cache:  cacheMgr,
	}

	httpClient := httpclient.NewHTTPClient(httpClientConfig(appCfg.HTTP))
	breaker := circuitBreakerConfig(appCfg.Resilience.CircuitBreaker)

	gen, err := cfg.Factory.Create(appCfg.Generator, providers.ProviderOptions{
		HTTPClient:     httpClient,
		CircuitBreaker: breaker,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create generator: %w", err), app.closeStore())
	}
	app.generator = gen

	prompts, err := loadPrompt(appCfg.Generator.PromptFile)
	if err != nil {
		return nil, errors.Join(err, app.closeStore())
	}

	verses := iqbible.New(appCfg.Bible.APIKey, iqbible.Options{
		BaseURL:        appCfg.Bible.BaseURL,
		Host:           appCfg.Bible.Host,
		HTTPClient:     httpClient,
		CircuitBreaker: breaker,
	})
	resolver := bible.ChainResolver{bible.StaticResolver{}}
	if appCfg.Bible.RemoteBookNames {
		resolver = append(resolver, verses)
	}

	orchestrator := devotional.NewOrchestrator(cacheMgr, gen,
		devotional.WithTimeout(time.Duration(appCfg.Fetch.Timeout)*time.Second),
		devotional.WithPromptBuilder(prompts),
		devotional.WithHooks(fetchHooks),
	)
	app.service = devotional.NewService(orchestrator, verses, resolver, appCfg.Bible.Translation)

	bodySizeLimit, err := config.ParseBodySizeLimit(appCfg.Server.BodySizeLimit)
	if err != nil {
		return nil, errors.Join(err, app.closeStore())
	}
	app.server = server.New(app.service, cacheMgr, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   bodySizeLimit,
	})

	app.logStartupInfo()
	return app, nil
}

// Service returns the devotional service.
func (a *App) Service() *devotional.Service {
	return a.service
}

// Cache returns the cache manager.
func (a *App) Cache() *cache.Manager {
	return a.cache
}

// Handler returns the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, honoring ctx, then closes the store.
// It is idempotent; every step is attempted and failures are joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Close the cache store
	if err := a.closeStore(); err != nil {
		slog.Error("storage close error", "error", err)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("storage close: %w", err)
	}
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("DEVOTIONAL_MASTER_KEY not set, API routes are unauthenticated")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", a.store.Type(), "ttl", a.cache.TTL())
	slog.Info("generator configured",
		"type", cfg.Generator.Type,
		"model", cfg.Generator.Model,
		"fetch_timeout", time.Duration(cfg.Fetch.Timeout)*time.Second,
	)
	slog.Info("verse source configured",
		"translation", cfg.Bible.Translation,
		"remote_book_names", cfg.Bible.RemoteBookNames,
	)
	if cfg.Resilience.CircuitBreaker.Enabled {
		slog.Info("circuit breaker enabled",
			"failure_threshold", cfg.Resilience.CircuitBreaker.FailureThreshold,
			"timeout", time.Duration(cfg.Resilience.CircuitBreaker.Timeout)*time.Second,
		)
	}
}

// OpenCache opens only the store and cache manager, for commands that
// inspect or edit the cache without reaching remote services. The returned
// store must be closed by the caller.
func OpenCache(ctx context.Context, cfg *config.Config) (storage.Store, *cache.Manager, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("app config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return openCache(ctx, cfg, cache.Hooks{})
}

func openCache(ctx context.Context, cfg *config.Config, hooks cache.Hooks) (storage.Store, *cache.Manager, error) {
	store, err := storage.New(ctx, storageConfig(cfg.Storage))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}
	mgr := cache.NewManager(store,
		cache.WithTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		cache.WithHooks(hooks),
	)
	return store, mgr, nil
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Type:       cfg.Type,
		File:       storage.FileConfig{Path: cfg.File.Path},
		SQLite:     storage.SQLiteConfig{Path: cfg.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{URL: cfg.PostgreSQL.URL, MaxConns: cfg.PostgreSQL.MaxConns},
		MongoDB:    storage.MongoDBConfig{URL: cfg.MongoDB.URL, Database: cfg.MongoDB.Database},
		Redis:      storage.RedisConfig{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix},
	}
}

func httpClientConfig(cfg config.HTTPConfig) *httpclient.ClientConfig {
	c := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		c.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if cfg.ResponseHeaderTimeout > 0 {
		c.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeout) * time.Second
	}
	return &c
}

// circuitBreakerConfig returns nil when the breaker is disabled.
func circuitBreakerConfig(cfg config.CircuitBreakerConfig) *llmclient.CircuitBreakerConfig {
	if !cfg.Enabled {
		return nil
	}
	cb := llmclient.DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold > 0 {
		cb.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.SuccessThreshold > 0 {
		cb.SuccessThreshold = cfg.SuccessThreshold
	}
	if cfg.Timeout > 0 {
		cb.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return cb
}

func loadPrompt(path string) (*prompt.Builder, error) {
	if path == "" {
		return prompt.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return prompt.New(string(data)), nil
}
