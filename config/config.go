// Package config provides configuration management for the application.
//
// Values are resolved in this order, later steps winning:
//  1. built-in defaults
//  2. config.yaml (with ${VAR} and ${VAR:-default} expansion)
//  3. environment variables (a .env file in the working directory is loaded first)
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Bible      BibleConfig      `yaml:"bible"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey protects /v1 routes when set
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit caps request bodies, e.g. "64K" (default 1M)
	BodySizeLimit string `yaml:"body_size_limit"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is auto, json or text. auto picks colored text on a terminal.
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// StorageConfig selects and configures the cache backing store
type StorageConfig struct {
	// Type is memory, file, sqlite, postgresql, mongodb or redis
	Type       string                  `yaml:"type"`
	File       FileStorageConfig       `yaml:"file"`
	SQLite     SQLiteStorageConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLStorageConfig `yaml:"postgresql"`
	MongoDB    MongoDBStorageConfig    `yaml:"mongodb"`
	Redis      RedisStorageConfig      `yaml:"redis"`
}

// FileStorageConfig holds JSON file storage settings
type FileStorageConfig struct {
	Path string `yaml:"path"`
}

// SQLiteStorageConfig holds SQLite settings
type SQLiteStorageConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLStorageConfig holds PostgreSQL settings
type PostgreSQLStorageConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBStorageConfig holds MongoDB settings
type MongoDBStorageConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// RedisStorageConfig holds Redis settings
type RedisStorageConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// CacheConfig holds devotional cache settings
type CacheConfig struct {
	// TTL in seconds (default 604800, seven days)
	TTL int `yaml:"ttl"`
}

// FetchConfig holds orchestrator settings
type FetchConfig struct {
	// Timeout bounds one generator call, in seconds (default 60)
	Timeout int `yaml:"timeout"`
}

// GeneratorConfig configures the devotional generator
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// PromptFile replaces the embedded prompt template when set
	PromptFile string `yaml:"prompt_file"`
}

// BibleConfig configures the IQ Bible verse source
type BibleConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Host        string `yaml:"host"`
	Translation string `yaml:"translation"`
	// RemoteBookNames asks the API for book names the static table cannot resolve
	RemoteBookNames bool `yaml:"remote_book_names"`
}

// ResilienceConfig holds circuit breaker settings for remote calls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings. Timeout is in seconds.
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold"`
	SuccessThreshold int  `yaml:"success_threshold"`
	Timeout          int  `yaml:"timeout"`
}

// ErrMissingAPIKey is returned by Validate when a required key is empty.
var ErrMissingAPIKey = errors.New("missing_api_key")

// buildDefaultConfig returns the configuration used when nothing else is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "1M",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		HTTP: HTTPConfig{
			Timeout:               60,
			ResponseHeaderTimeout: 60,
		},
		Storage: StorageConfig{
			Type:       "file",
			File:       FileStorageConfig{Path: ".cache/devotional.json"},
			SQLite:     SQLiteStorageConfig{Path: ".cache/devotional.db"},
			PostgreSQL: PostgreSQLStorageConfig{MaxConns: 10},
			MongoDB:    MongoDBStorageConfig{Database: "devotional"},
			Redis:      RedisStorageConfig{Prefix: "devotional:"},
		},
		Cache: CacheConfig{
			TTL: 604800,
		},
		Fetch: FetchConfig{
			Timeout: 60,
		},
		Generator: GeneratorConfig{
			Type:        "groq",
			MaxTokens:   1000,
			Temperature: 0.8,
		},
		Bible: BibleConfig{
			BaseURL:     "https://iq-bible.p.rapidapi.com",
			Host:        "iq-bible.p.rapidapi.com",
			Translation: "kjv",
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30,
			},
		},
	}
}

// Default returns the built-in defaults without reading any file or
// environment variable.
func Default() *Config {
	cfg := buildDefaultConfig()
	applyGeneratorDefaults(&cfg.Generator)
	return cfg
}

// generatorDefaults holds the endpoint and model of each known generator
// type. They fill in whatever the file and environment left empty.
var generatorDefaults = map[string]struct {
	BaseURL     string
	Model       string
	KeyEnv      string
	KeyOptional bool
}{
	"groq":   {BaseURL: "https://api.groq.com/openai/v1", Model: "llama3-70b-8192", KeyEnv: "GROQ_API_KEY"},
	"ollama": {BaseURL: "http://localhost:11434/v1", Model: "llama3", KeyEnv: "OLLAMA_API_KEY", KeyOptional: true},
}

func applyGeneratorDefaults(g *GeneratorConfig) {
	d, ok := generatorDefaults[g.Type]
	if !ok {
		return
	}
	if g.BaseURL == "" {
		g.BaseURL = d.BaseURL
	}
	if g.Model == "" {
		g.Model = d.Model
	}
}

// Load reads configuration from defaults, config.yaml and the environment.
// The config file is looked up at $DEVOTIONAL_CONFIG, ./config.yaml and
// ./config/config.yaml; a missing file is not an error.
func Load() (*Config, error) {
	// .env never overrides variables that are already set
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := buildDefaultConfig()

	if path := findConfigFile(); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyGeneratorDefaults(&cfg.Generator)
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{os.Getenv("DEVOTIONAL_CONFIG"), "config.yaml", "config/config.yaml"}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A ${VAR} whose variable is
// unset or empty is left as written.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides copies set environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if val := v.GetString(key); val != "" {
			*dst = val
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if val := v.GetString(key); val != "" {
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, val))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if val := v.GetString(key); val != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid number %q", key, val))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if val := v.GetString(key); val != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, val))
				return
			}
			*dst = b
		}
	}

	str("PORT", &cfg.Server.Port)
	str("DEVOTIONAL_MASTER_KEY", &cfg.Server.MasterKey)
	str("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	num("HTTP_TIMEOUT", &cfg.HTTP.Timeout)
	num("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("CACHE_FILE_PATH", &cfg.Storage.File.Path)
	str("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	num("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns)
	str("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	str("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)
	str("REDIS_URL", &cfg.Storage.Redis.URL)
	str("REDIS_PREFIX", &cfg.Storage.Redis.Prefix)

	num("CACHE_TTL", &cfg.Cache.TTL)
	num("FETCH_TIMEOUT", &cfg.Fetch.Timeout)

	str("GENERATOR_TYPE", &cfg.Generator.Type)
	str("GROQ_API_KEY", &cfg.Generator.APIKey)
	str("GROQ_BASE_URL", &cfg.Generator.BaseURL)
	str("GROQ_MODEL", &cfg.Generator.Model)
	num("GROQ_MAX_TOKENS", &cfg.Generator.MaxTokens)
	float("GROQ_TEMPERATURE", &cfg.Generator.Temperature)
	str("OLLAMA_API_KEY", &cfg.Generator.APIKey)
	str("OLLAMA_BASE_URL", &cfg.Generator.BaseURL)
	str("OLLAMA_MODEL", &cfg.Generator.Model)
	str("GENERATOR_BASE_URL", &cfg.Generator.BaseURL)
	str("GENERATOR_MODEL", &cfg.Generator.Model)
	str("PROMPT_FILE", &cfg.Generator.PromptFile)

	str("IQBIBLE_API_KEY", &cfg.Bible.APIKey)
	str("IQBIBLE_BASE_URL", &cfg.Bible.BaseURL)
	str("IQBIBLE_HOST", &cfg.Bible.Host)
	str("BIBLE_TRANSLATION", &cfg.Bible.Translation)
	boolean("IQBIBLE_REMOTE_BOOK_NAMES", &cfg.Bible.RemoteBookNames)

	boolean("CIRCUIT_BREAKER_ENABLED", &cfg.Resilience.CircuitBreaker.Enabled)
	num("CIRCUIT_BREAKER_FAILURE_THRESHOLD", &cfg.Resilience.CircuitBreaker.FailureThreshold)
	num("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", &cfg.Resilience.CircuitBreaker.SuccessThreshold)
	num("CIRCUIT_BREAKER_TIMEOUT", &cfg.Resilience.CircuitBreaker.Timeout)

	return errors.Join(errs...)
}

var validStorageTypes = map[string]bool{
	"memory": true, "file": true, "sqlite": true, "postgresql": true, "mongodb": true, "redis": true,
}

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if !validStorageTypes[c.Storage.Type] {
		errs = append(errs, fmt.Errorf("storage.type: unknown backend %q", c.Storage.Type))
	}
	switch c.Storage.Type {
	case "postgresql":
		if c.Storage.PostgreSQL.URL == "" {
			errs = append(errs, errors.New("storage.postgresql.url is required"))
		}
	case "mongodb":
		if c.Storage.MongoDB.URL == "" {
			errs = append(errs, errors.New("storage.mongodb.url is required"))
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required"))
		}
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %d", c.Cache.TTL))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %d", c.Fetch.Timeout))
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateRemote checks the API keys needed to reach the verse source and the
// generator. Cache-only commands skip it.
func (c *Config) ValidateRemote() error {
	var errs []error
	if d, ok := generatorDefaults[c.Generator.Type]; ok && !d.KeyOptional && c.Generator.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingAPIKey, d.KeyEnv))
	}
	if c.Bible.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: IQBIBLE_API_KEY", ErrMissingAPIKey))
	}
	return errors.Join(errs...)
}

const (
	minBodySize = 1 << 10   // 1KB
	maxBodySize = 100 << 20 // 100MB
)

var bodySizePattern = regexp.MustCompile(`^(\d+)([KMG]B?)?$`)

// ValidateBodySizeLimit checks a size like "64K" or "10MB" and keeps it
// between 1KB and 100MB. Empty means the default.
func ValidateBodySizeLimit(limit string) error {
	_, err := ParseBodySizeLimit(limit)
	return err
}

// ParseBodySizeLimit converts a size string to bytes. Empty yields 0.
func ParseBodySizeLimit(limit string) (int64, error) {
	limit = strings.ToUpper(strings.TrimSpace(limit))
	if limit == "" {
		return 0, nil
	}
	m := bodySizePattern.FindStringSubmatch(limit)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit %q: use a number with an optional K, M or G suffix", limit)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit %q: %w", limit, err)
	}
	switch strings.TrimSuffix(m[2], "B") {
	case "K":
		n <<= 10
	case "M":
		n <<= 20
	case "G":
		n <<= 30
	}
	if n < minBodySize || n > maxBodySize {
		return 0, fmt.Errorf("body size limit %q out of range (1K to 100M)", limit)
	}
	return n, nil
}
