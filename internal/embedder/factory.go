package embedder

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// Environment variables consulted for provider selection and credentials
const (
	EnvProvider     = "CRYPTIQUE_EMBEDDING_PROVIDER"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
	CacheSize int
}

// NewProvider creates the provider named by cfg. A missing API key yields an
// error matching types.ErrMissingCredentials.
func NewProvider(cfg Config) (Embedder, error) {
	pcfg := ProviderConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
	}
	if pcfg.APIKey == "" {
		pcfg.APIKey = APIKeyFromEnv(cfg.Provider)
	}

	var (
		p   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		p, err = NewGeminiProvider(pcfg)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(pcfg)
	case ProviderJina:
		p, err = NewJinaProvider(pcfg)
	case ProviderLocal:
		p = NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dimension > 0 && p.Dimension() != cfg.Dimension {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %s produces %d, configured %d",
			ErrDimensionMismatch, p.Provider(), p.Dimension(), cfg.Dimension)
	}
	return p, nil
}

// NewClientFromConfig builds the process-wide embedding client. Missing
// credentials are not an error: the client is returned in degraded mode.
func NewClientFromConfig(cfg Config, opts Options, options ...Option) (*Client, error) {
	if cfg.CacheSize > 0 {
		options = append([]Option{WithCache(NewCache(cfg.CacheSize))}, options...)
	}
	if opts.Dimension == 0 {
		opts.Dimension = cfg.Dimension
	}

	p, err := NewProvider(cfg)
	if errors.Is(err, types.ErrMissingCredentials) {
		name := strings.ToLower(cfg.Provider)
		if name == "" {
			name = ProviderGemini
		}
		return newDegradedClient(name, opts, options...), nil
	}
	if err != nil {
		return nil, err
	}
	return NewClient(p, opts, options...), nil
}

// DetectProvider picks a provider from the environment:
// CRYPTIQUE_EMBEDDING_PROVIDER first, then whichever API key is set, and the
// local provider when there is none
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if APIKeyFromEnv(ProviderGemini) != "" {
		return ProviderGemini
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}

	return ProviderLocal
}

// APIKeyFromEnv returns the credential for provider from the environment
func APIKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini, "":
		if key := os.Getenv(EnvGeminiAPIKey); key != "" {
			return key
		}
		return os.Getenv(EnvGoogleAPIKey)
	case ProviderOpenAI:
		return os.Getenv(EnvOpenAIAPIKey)
	case ProviderJina:
		return os.Getenv(EnvJinaAPIKey)
	}
	return ""
}
