package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/embedder"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
)

// clearEnv unsets every variable ApplyEnv consults
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		embedder.EnvProvider, embedder.EnvGeminiAPIKey, embedder.EnvGoogleAPIKey,
		embedder.EnvOpenAIAPIKey, embedder.EnvJinaAPIKey,
		EnvConfigPath, EnvBackend, EnvDBPath, EnvModel, EnvTopK,
		EnvMinSimilarity, EnvRetention, EnvLogLevel, EnvLogFormat,
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, embedder.ProviderGemini, cfg.Embedding.Provider)
	assert.Equal(t, "models/embedding-001", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Embedding.BatchSize)
	assert.Equal(t, time.Second, cfg.Embedding.BatchDelay)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 8000, cfg.Embedding.MaxTextLength)
	assert.Equal(t, 10, cfg.Embedding.MinTextLength)
	assert.Equal(t, storage.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.7, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.MaxAge)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	content := `
embedding:
  provider: local
  dimension: 256
  batch_delay: 250ms
store:
  backend: bolt
  path: /var/lib/cryptique/vectors.db
retrieval:
  top_k: 12
retention:
  max_age: 720h
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.BatchDelay)
	assert.Equal(t, storage.BackendBolt, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/cryptique/vectors.db", cfg.Store.Path)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unset keys keep their defaults
	assert.Equal(t, 5, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.7, cfg.Retrieval.MinSimilarity)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("embedding: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	cfg := DefaultConfig()
	cfg.Retrieval.TopK = 9
	cfg.Embedding.APIKey = "secret"

	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopK)
	assert.Equal(t, cfg.Embedding.BatchDelay, loaded.Embedding.BatchDelay)
	assert.Empty(t, loaded.Embedding.APIKey)
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(embedder.EnvProvider, "OpenAI")
	t.Setenv(embedder.EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvBackend, "bolt")
	t.Setenv(EnvDBPath, "/tmp/rag.db")
	t.Setenv(EnvTopK, "7")
	t.Setenv(EnvMinSimilarity, "0.55")
	t.Setenv(EnvRetention, "48h")
	t.Setenv(EnvLogLevel, "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, embedder.DefaultOpenAIModel, cfg.Embedding.Model)
	assert.Equal(t, embedder.OpenAIDimension, cfg.Embedding.Dimension)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, storage.BackendBolt, cfg.Store.Backend)
	assert.Equal(t, "/tmp/rag.db", cfg.Store.Path)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 0.55, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 48*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnv_DetectsProvider(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		provider string
		model    string
	}{
		{
			name:     "no keys keeps default",
			provider: embedder.ProviderGemini,
			model:    embedder.DefaultGeminiModel,
		},
		{
			name:     "openai key selects openai",
			env:      map[string]string{embedder.EnvOpenAIAPIKey: "sk-test"},
			provider: embedder.ProviderOpenAI,
			model:    embedder.DefaultOpenAIModel,
		},
		{
			name:     "jina key selects jina",
			env:      map[string]string{embedder.EnvJinaAPIKey: "jina-test"},
			provider: embedder.ProviderJina,
			model:    embedder.DefaultJinaModel,
		},
		{
			name:     "file provider wins over keys",
			yaml:     "embedding:\n  provider: gemini\n",
			env:      map[string]string{embedder.EnvOpenAIAPIKey: "sk-test"},
			provider: embedder.ProviderGemini,
			model:    embedder.DefaultGeminiModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), DefaultFileName)
			if tt.yaml != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			}
			cfg, err := Load(path)
			require.NoError(t, err)
			require.NoError(t, cfg.ApplyEnv())

			assert.Equal(t, tt.provider, cfg.Embedding.Provider)
			assert.Equal(t, tt.model, cfg.Embedding.Model)
		})
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvTopK, "many"},
		{EnvMinSimilarity, "high"},
		{EnvRetention, "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			err := DefaultConfig().ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestSetProvider_KeepsCustomDimension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Dimension = 512

	cfg.SetProvider(embedder.ProviderLocal)

	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, embedder.DefaultLocalModel, cfg.Embedding.Model)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }, "embedding.batch_size"},
		{"negative delay", func(c *Config) { c.Embedding.BatchDelay = -time.Second }, "embedding.batch_delay"},
		{"max below min", func(c *Config) { c.Embedding.MaxTextLength = 5 }, "text length"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"empty path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"top-k too large", func(c *Config) { c.Retrieval.TopK = 101 }, "retrieval.top_k"},
		{"similarity out of range", func(c *Config) { c.Retrieval.MinSimilarity = 1.1 }, "retrieval.min_similarity"},
		{"no workers", func(c *Config) { c.Retrieval.IngestWorkers = 0 }, "retrieval.ingest_workers"},
		{"negative retention", func(c *Config) { c.Retention.MaxAge = -time.Hour }, "retention.max_age"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
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

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTopK, "0")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "retrieval.top_k")
}

func TestLoadDefault_UsesEnvPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 3\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
}

func TestClientOptionsAndEmbedderConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.APIKey = "key"

	ec := cfg.EmbedderConfig()
	assert.Equal(t, embedder.ProviderGemini, ec.Provider)
	assert.Equal(t, "key", ec.APIKey)
	assert.Equal(t, 768, ec.Dimension)
	assert.Equal(t, embedder.DefaultCacheSize, ec.CacheSize)

	opts := cfg.ClientOptions()
	assert.Equal(t, 5, opts.BatchSize)
	assert.Equal(t, time.Second, opts.BatchDelay)
	assert.Equal(t, 768, opts.Dimension)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"~/.cryptique/rag.db", filepath.Join(home, ".cryptique", "rag.db")},
		{"~", home},
		{"/abs/path.db", "/abs/path.db"},
		{"relative.db", "relative.db"},
		{"~other/x", "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandHome(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
