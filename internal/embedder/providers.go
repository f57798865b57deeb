package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// Provider configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"

	// Default models
	DefaultGeminiModel = "models/embedding-001"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultLocalModel  = "local-hash"

	// Dimensions
	GeminiDimension = 768
	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 768

	// Endpoints
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultJinaBaseURL   = "https://api.jina.ai"

	// Client defaults
	DefaultBatchSize     = 5
	DefaultBatchDelay    = time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultMaxTextLength = 8000
	DefaultMinTextLength = 10
	DefaultCacheSize     = 10000
)

// ProviderConfig holds what a single provider needs to make calls
type ProviderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

func (c ProviderConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// GeminiProvider implements Embedder using the Gemini embedContent API
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
}

// NewGeminiProvider creates a new Gemini embedder
func NewGeminiProvider(cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", types.ErrMissingCredentials, EnvGeminiAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = GeminiDimension
	}

	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimension:  dim,
		httpClient: cfg.httpClient(),
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": g.model,
		"content": map[string]interface{}{
			"parts": []map[string]string{{"text": req.Text}},
		},
	}

	var apiResp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}

	url := fmt.Sprintf("%s/v1beta/%s:embedContent", g.baseURL, g.model)
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	if err := postJSON(ctx, g.httpClient, url, headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, ErrNoEmbeddingInReply)
	}

	return &Embedding{
		Vector:    apiResp.Embedding.Values,
		Dimension: len(apiResp.Embedding.Values),
		Provider:  ProviderGemini,
		Model:     g.model,
	}, nil
}

func (g *GeminiProvider) Dimension() int {
	return g.dimension
}

func (g *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.model
}

func (g *GeminiProvider) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg ProviderConfig) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", types.ErrMissingCredentials, EnvJinaAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultJinaModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultJinaBaseURL
	}

	return &JinaProvider{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: cfg.httpClient(),
	}, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"input": []string{req.Text},
		"model": j.model,
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	headers := map[string]string{"Authorization": "Bearer " + j.apiKey}
	if err := postJSON(ctx, j.httpClient, j.baseURL+"/v1/embeddings", headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, ErrNoEmbeddingInReply)
	}

	vec := apiResp.Data[0].Embedding
	return &Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Provider:  ProviderJina,
		Model:     j.model,
	}, nil
}

func (j *JinaProvider) Dimension() int {
	return JinaDimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// postJSON sends body as JSON and decodes a 200 response into out
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// LocalProvider derives deterministic vectors from a text hash. It needs no
// credentials and makes no network calls; identical texts embed identically.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	vector := make([]float32, l.dimension)
	var counter [4]byte
	for block := 0; block*32 < l.dimension; block++ {
		binary.LittleEndian.PutUint32(counter[:], uint32(block))
		sum := sha256.Sum256(append([]byte(req.Text), counter[:]...))
		for i := 0; i < 32 && block*32+i < l.dimension; i++ {
			// Map each byte to [-1, 1]
			vector[block*32+i] = float32(sum[i])/127.5 - 1
		}
	}

	return &Embedding{
		Vector:    vector,
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
