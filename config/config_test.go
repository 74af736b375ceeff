package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test in an empty directory so no stray config.yaml or .env
// is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DEVOTIONAL_CONFIG", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, 604800, cfg.Cache.TTL)
	assert.Equal(t, 60, cfg.Fetch.Timeout)
	assert.Equal(t, "llama3-70b-8192", cfg.Generator.Model)
	assert.Equal(t, 1000, cfg.Generator.MaxTokens)
	assert.Equal(t, "kjv", cfg.Bible.Translation)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	dir := chdir(t)
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TEST_PORT_DEFAULTS", "")
	t.Setenv("PORT", "")

	content := `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
storage:
  type: redis
  redis:
    url: "${TEST_REDIS_URL}"
cache:
  ttl: 86400
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "redis://cache:6379/1", cfg.Storage.Redis.URL)
	assert.Equal(t, "devotional:", cfg.Storage.Redis.Prefix, "unset keys keep their defaults")
	assert.Equal(t, 86400, cfg.Cache.TTL)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: \"7000\"\n"), 0o644))
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Server.Port)
}

func TestLoad_ExplicitConfigPath(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bible:\n  translation: asv\n"), 0o644))
	t.Setenv("DEVOTIONAL_CONFIG", path)
	t.Setenv("BIBLE_TRANSLATION", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "asv", cfg.Bible.Translation)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdir(t)
	t.Setenv("GROQ_API_KEY", "")
	_ = os.Unsetenv("GROQ_API_KEY")
	t.Setenv("IQBIBLE_API_KEY", "from-real-env")

	env := "GROQ_API_KEY=gsk-from-dotenv\nIQBIBLE_API_KEY=from-dotenv\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("GROQ_API_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gsk-from-dotenv", cfg.Generator.APIKey)
	assert.Equal(t, "from-real-env", cfg.Bible.APIKey, "real environment wins over .env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(cfg *Config) {}},
		{name: "unknown storage", mutate: func(cfg *Config) { cfg.Storage.Type = "etcd" }, wantErr: "unknown backend"},
		{name: "postgres without url", mutate: func(cfg *Config) { cfg.Storage.Type = "postgresql" }, wantErr: "postgresql.url"},
		{name: "mongodb without url", mutate: func(cfg *Config) { cfg.Storage.Type = "mongodb" }, wantErr: "mongodb.url"},
		{name: "redis without url", mutate: func(cfg *Config) { cfg.Storage.Type = "redis" }, wantErr: "redis.url"},
		{name: "zero ttl", mutate: func(cfg *Config) { cfg.Cache.TTL = 0 }, wantErr: "cache.ttl"},
		{name: "zero fetch timeout", mutate: func(cfg *Config) { cfg.Fetch.Timeout = 0 }, wantErr: "fetch.timeout"},
		{name: "bad body size", mutate: func(cfg *Config) { cfg.Server.BodySizeLimit = "10X" }, wantErr: "body size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := buildDefaultConfig()
	err := cfg.ValidateRemote()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
	assert.Contains(t, err.Error(), "IQBIBLE_API_KEY")

	cfg.Generator.APIKey = "gsk"
	cfg.Bible.APIKey = "iq"
	assert.NoError(t, cfg.ValidateRemote())
}

func TestValidateBodySizeLimit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{"empty string is valid", "", false},
		{"plain number", "1048576", false},
		{"kilobytes lowercase", "100k", false},
		{"kilobytes with B suffix", "100KB", false},
		{"megabytes uppercase", "10M", false},
		{"whitespace trimmed", "  10M  ", false},
		{"minimum valid (1KB)", "1K", false},
		{"maximum valid (100MB)", "100M", false},
		{"invalid format with letters", "abc", true},
		{"invalid unit", "10X", true},
		{"negative number", "-10M", true},
		{"decimal number", "10.5M", true},
		{"empty unit with B", "10B", true},
		{"below minimum (100 bytes)", "100", true},
		{"above maximum (200MB)", "200M", true},
		{"above maximum (1GB)", "1G", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBodySizeLimit(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q, got nil", tt.input)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error for input %q: %v", tt.input, err)
				}
			}
		})
	}
}

func TestParseBodySizeLimit(t *testing.T) {
	n, err := ParseBodySizeLimit("64K")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<10), n)

	n, err = ParseBodySizeLimit("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoad_GeneratorDefaultsFollowType(t *testing.T) {
	chdir(t)
	t.Setenv("GENERATOR_TYPE", "ollama")
	t.Setenv("GENERATOR_MODEL", "")
	t.Setenv("GROQ_MODEL", "")
	t.Setenv("GROQ_BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Generator.BaseURL)
	assert.Equal(t, "llama3", cfg.Generator.Model)

	cfg.Bible.APIKey = "iq"
	assert.NoError(t, cfg.ValidateRemote(), "ollama runs without an API key")

	t.Setenv("GENERATOR_MODEL", "mistral")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Generator.Model)
}
