package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/embedder"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
)

// Environment overrides applied by ApplyEnv
const (
	EnvConfigPath    = "CRYPTIQUE_RAG_CONFIG"
	EnvBackend       = "CRYPTIQUE_RAG_BACKEND"
	EnvDBPath        = "CRYPTIQUE_RAG_DB_PATH"
	EnvModel         = "CRYPTIQUE_RAG_MODEL"
	EnvTopK          = "CRYPTIQUE_RAG_TOP_K"
	EnvMinSimilarity = "CRYPTIQUE_RAG_MIN_SIMILARITY"
	EnvRetention     = "CRYPTIQUE_RAG_RETENTION"
	EnvLogLevel      = "CRYPTIQUE_RAG_LOG_LEVEL"
	EnvLogFormat     = "CRYPTIQUE_RAG_LOG_FORMAT"
)

// DefaultFileName is looked up in the working directory when no path is given
const DefaultFileName = "cryptique-rag.yaml"

// Config holds all configuration for the retrieval pipeline.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`

	// providerSet is true once the file or SetProvider names a provider
	providerSet bool
}

// EmbeddingConfig holds embedding provider and client configuration.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"` // "gemini", "openai", "jina", "local"
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Dimension     int           `yaml:"dimension"`
	BatchSize     int           `yaml:"batch_size"`
	BatchDelay    time.Duration `yaml:"batch_delay"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size"` // 0 disables the cache
	MaxTextLength int           `yaml:"max_text_length"`
	MinTextLength int           `yaml:"min_text_length"`
	Normalize     bool          `yaml:"normalize"`

	// APIKey is never read from the file; it comes from the provider's env var
	APIKey string `yaml:"-"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "bolt"
	Path    string `yaml:"path"`
}

// RetrievalConfig holds query and ingestion defaults.
type RetrievalConfig struct {
	TopK           int           `yaml:"top_k"`
	MinSimilarity  float64       `yaml:"min_similarity"`
	IngestWorkers  int           `yaml:"ingest_workers"`
	QueryCacheSize int           `yaml:"query_cache_size"` // 0 disables the query cache
	QueryCacheTTL  time.Duration `yaml:"query_cache_ttl"`
}

// RetentionConfig bounds how long records are kept.
type RetentionConfig struct {
	MaxAge time.Duration `yaml:"max_age"` // 0 keeps records forever
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:      embedder.ProviderGemini,
			Model:         embedder.DefaultGeminiModel,
			Dimension:     embedder.GeminiDimension,
			BatchSize:     embedder.DefaultBatchSize,
			BatchDelay:    embedder.DefaultBatchDelay,
			Timeout:       embedder.DefaultTimeout,
			CacheSize:     embedder.DefaultCacheSize,
			MaxTextLength: embedder.DefaultMaxTextLength,
			MinTextLength: embedder.DefaultMinTextLength,
		},
		Store: StoreConfig{
			Backend: storage.BackendSQLite,
			Path:    filepath.Join("~", ".cryptique", "rag.db"),
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			MinSimilarity:  0.7,
			IngestWorkers:  4,
			QueryCacheSize: 1000,
			QueryCacheTTL:  5 * time.Minute,
		},
		Retention: RetentionConfig{
			MaxAge: 90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file over the defaults.
// A missing file is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	var named struct {
		Embedding struct {
			Provider string `yaml:"provider"`
		} `yaml:"embedding"`
	}
	if err := yaml.Unmarshal(data, &named); err == nil && named.Embedding.Provider != "" {
		cfg.providerSet = true
	}

	return cfg, nil
}

// LoadDefault loads the file named by CRYPTIQUE_RAG_CONFIG, or
// cryptique-rag.yaml in the working directory, then applies environment
// overrides and validates the result.
func LoadDefault() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultFileName
	}
	return LoadFile(path)
}

// LoadFile loads path, applies environment overrides and validates.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides configuration from CRYPTIQUE_RAG_* variables and picks
// the provider and its API key from the embedding environment. When neither
// the file nor CRYPTIQUE_EMBEDDING_PROVIDER names a provider, the one whose
// API key is set is used; with no key the default provider is kept.
func (c *Config) ApplyEnv() error {
	switch {
	case os.Getenv(embedder.EnvProvider) != "":
		c.SetProvider(strings.ToLower(os.Getenv(embedder.EnvProvider)))
	case !c.providerSet:
		if p := embedder.DetectProvider(); p != embedder.ProviderLocal {
			c.SetProvider(p)
		}
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(EnvTopK); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTopK, err)
		}
		c.Retrieval.TopK = n
	}
	if v := os.Getenv(EnvMinSimilarity); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMinSimilarity, err)
		}
		c.Retrieval.MinSimilarity = f
	}
	if v := os.Getenv(EnvRetention); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRetention, err)
		}
		c.Retention.MaxAge = d
	}

	c.Embedding.APIKey = embedder.APIKeyFromEnv(c.Embedding.Provider)
	return nil
}

// SetProvider switches the embedding provider. Model and dimension follow the
// new provider's defaults unless they were changed from the old provider's.
func (c *Config) SetProvider(provider string) {
	oldModel, oldDim := providerDefaults(c.Embedding.Provider)
	newModel, newDim := providerDefaults(provider)

	if c.Embedding.Model == oldModel {
		c.Embedding.Model = newModel
	}
	if c.Embedding.Dimension == oldDim && newDim > 0 {
		c.Embedding.Dimension = newDim
	}
	c.Embedding.Provider = provider
	c.providerSet = true
}

func providerDefaults(provider string) (string, int) {
	switch provider {
	case embedder.ProviderGemini:
		return embedder.DefaultGeminiModel, embedder.GeminiDimension
	case embedder.ProviderOpenAI:
		return embedder.DefaultOpenAIModel, embedder.OpenAIDimension
	case embedder.ProviderJina:
		return embedder.DefaultJinaModel, embedder.JinaDimension
	case embedder.ProviderLocal:
		return embedder.DefaultLocalModel, embedder.LocalDimension
	}
	return "", 0
}

// Validate checks value ranges and known names.
func (c *Config) Validate() error {
	var errs []error

	switch c.Embedding.Provider {
	case embedder.ProviderGemini, embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_delay must not be negative"))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding.timeout must be positive"))
	}
	if c.Embedding.MinTextLength < 0 || c.Embedding.MaxTextLength < c.Embedding.MinTextLength {
		errs = append(errs, fmt.Errorf("embedding text length bounds are invalid: min %d, max %d",
			c.Embedding.MinTextLength, c.Embedding.MaxTextLength))
	}

	switch c.Store.Backend {
	case storage.BackendSQLite, storage.BackendBolt:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 100 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be between 1 and 100, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_similarity must be between -1 and 1, got %v", c.Retrieval.MinSimilarity))
	}
	if c.Retrieval.IngestWorkers < 1 {
		errs = append(errs, fmt.Errorf("retrieval.ingest_workers must be at least 1, got %d", c.Retrieval.IngestWorkers))
	}
	if c.Retention.MaxAge < 0 {
		errs = append(errs, errors.New("retention.max_age must not be negative"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// EmbedderConfig returns the provider settings for embedder.NewClientFromConfig.
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		Timeout:   c.Embedding.Timeout,
		CacheSize: c.Embedding.CacheSize,
	}
}

// ClientOptions returns the batching and text limits for the embedding client.
func (c *Config) ClientOptions() embedder.Options {
	return embedder.Options{
		BatchSize:     c.Embedding.BatchSize,
		BatchDelay:    c.Embedding.BatchDelay,
		MaxTextLength: c.Embedding.MaxTextLength,
		MinTextLength: c.Embedding.MinTextLength,
		Normalize:     c.Embedding.Normalize,
		Dimension:     c.Embedding.Dimension,
	}
}

// StorePath returns the store path with a leading ~ expanded.
func (c *Config) StorePath() (string, error) {
	return ExpandHome(c.Store.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
