package embedder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/similarity"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// Options configures a Client
type Options struct {
	BatchSize     int           // provider calls issued concurrently per group
	BatchDelay    time.Duration // fixed wait between consecutive groups
	MaxTextLength int           // runes kept after cleaning
	MinTextLength int           // shorter cleaned text is skipped
	Normalize     bool          // L2-normalize returned vectors
	Dimension     int           // reported when no provider is configured
}

// DefaultOptions returns the client defaults
func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		BatchDelay:    DefaultBatchDelay,
		MaxTextLength: DefaultMaxTextLength,
		MinTextLength: DefaultMinTextLength,
	}
}

// Stats counts client activity since construction
type Stats struct {
	Calls     int64
	Failures  int64
	Skipped   int64
	CacheHits int64
	Degraded  bool
	Provider  string
	Model     string
	Dimension int
}

// Client embeds text through a provider with cleaning, caching and paced
// concurrent batching. One Client is meant to be shared process-wide so that
// pacing applies across all callers.
type Client struct {
	provider     Embedder
	providerName string
	opts         Options
	cache        *Cache
	pacer        *pacer
	logger       *slog.Logger

	degradedOnce sync.Once

	calls     atomic.Int64
	failures  atomic.Int64
	skipped   atomic.Int64
	cacheHits atomic.Int64
}

// Option configures optional Client collaborators
type Option func(*Client)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "embedder")
	}
}

// WithCache enables embedding caching
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// NewClient creates a client over provider. A nil provider builds a degraded
// client: every batch item is nil and EmbedOne fails, without network calls.
func NewClient(provider Embedder, opts Options, options ...Option) *Client {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = defaults.MaxTextLength
	}
	if opts.MinTextLength < 0 {
		opts.MinTextLength = 0
	}

	c := &Client{
		provider: provider,
		opts:     opts,
		pacer:    newPacer(opts.BatchDelay),
		logger:   slog.Default().With("component", "embedder"),
	}
	if provider != nil {
		c.providerName = provider.Provider()
	}

	for _, opt := range options {
		opt(c)
	}

	if provider == nil {
		c.logger.Warn("no embedding credentials configured, embeddings are disabled")
	}
	return c
}

// newDegradedClient builds a client for a named provider whose credentials are missing
func newDegradedClient(providerName string, opts Options, options ...Option) *Client {
	c := NewClient(nil, opts, options...)
	c.providerName = providerName
	return c
}

// Available reports whether a provider is configured
func (c *Client) Available() bool {
	return c.provider != nil
}

// Provider returns the provider name
func (c *Client) Provider() string {
	return c.providerName
}

// Model returns the provider model, or "" when degraded
func (c *Client) Model() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Model()
}

// Dimension returns the vector dimension produced by this client
func (c *Client) Dimension() int {
	if c.provider == nil {
		return c.opts.Dimension
	}
	return c.provider.Dimension()
}

// Prepare cleans text with the client's length limits
func (c *Client) Prepare(text string) (string, bool) {
	return Prepare(text, c.opts.MaxTextLength, c.opts.MinTextLength)
}

// Stats returns a snapshot of client counters
func (c *Client) Stats() Stats {
	return Stats{
		Calls:     c.calls.Load(),
		Failures:  c.failures.Load(),
		Skipped:   c.skipped.Load(),
		CacheHits: c.cacheHits.Load(),
		Degraded:  c.provider == nil,
		Provider:  c.providerName,
		Model:     c.Model(),
		Dimension: c.Dimension(),
	}
}

// Close releases the provider
func (c *Client) Close() error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Close()
}

// EmbedOne embeds a single text. Failures are returned as *types.EmbedError.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	cleaned, ok := c.Prepare(text)
	if !ok {
		c.skipped.Add(1)
		return nil, &types.EmbedError{Err: types.ErrTextTooShort}
	}

	if c.provider == nil {
		c.warnDegraded()
		return nil, &types.EmbedError{Err: &types.ProviderError{Provider: c.providerName, Err: types.ErrMissingCredentials}}
	}

	if vec, hit := c.lookup(cleaned); hit {
		return vec, nil
	}

	var (
		vec     []float32
		callErr error
	)
	if err := c.pacer.run(ctx, func() {
		vec, callErr = c.call(ctx, cleaned)
	}); err != nil {
		return nil, &types.EmbedError{Err: err}
	}
	if callErr != nil {
		return nil, &types.EmbedError{Err: callErr}
	}
	if err := ctx.Err(); err != nil {
		return nil, &types.EmbedError{Err: err}
	}
	return vec, nil
}

// EmbedBatch embeds texts in paced groups and returns one entry per input.
// A nil entry marks text that was too short or whose provider call failed.
// The error is non-nil only when ctx is cancelled between groups.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	if c.provider == nil {
		c.warnDegraded()
		return out, nil
	}

	prepared := make([]string, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		cleaned, ok := c.Prepare(text)
		if !ok {
			c.skipped.Add(1)
			continue
		}
		if vec, hit := c.lookup(cleaned); hit {
			out[i] = vec
			continue
		}
		prepared[i] = cleaned
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += c.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		end := start + c.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		group := pending[start:end]

		if err := c.pacer.run(ctx, func() {
			c.runGroup(ctx, group, prepared, out)
		}); err != nil {
			return out, err
		}
	}

	return out, nil
}

// runGroup issues every call in the group concurrently and waits for all of them
func (c *Client) runGroup(ctx context.Context, group []int, prepared []string, out [][]float32) {
	var g errgroup.Group
	for _, idx := range group {
		g.Go(func() error {
			vec, err := c.call(ctx, prepared[idx])
			if err != nil {
				c.logger.Warn("embedding failed", "index", idx, "err", err)
				return nil
			}
			out[idx] = vec
			return nil
		})
	}
	_ = g.Wait()
}

// call makes one provider request. Caller cancellation does not abort a
// request already issued.
func (c *Client) call(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)

	emb, err := c.provider.GenerateEmbedding(context.WithoutCancel(ctx), EmbeddingRequest{Text: text})
	if err == nil && (emb == nil || len(emb.Vector) == 0) {
		err = ErrNoEmbeddingInReply
	}
	if err != nil {
		c.failures.Add(1)
		return nil, &types.ProviderError{Provider: c.providerName, Err: err}
	}

	vec := emb.Vector
	if c.opts.Normalize {
		vec = similarity.Normalize(vec)
	}

	if c.cache != nil {
		hash := ComputeHash(c.provider.Model(), text)
		c.cache.Set(hash, &Embedding{
			Vector:    append([]float32(nil), vec...),
			Dimension: len(vec),
			Provider:  c.providerName,
			Model:     c.provider.Model(),
			Hash:      hash,
		})
	}
	return vec, nil
}

func (c *Client) lookup(text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	emb, ok := c.cache.Get(ComputeHash(c.provider.Model(), text))
	if !ok {
		return nil, false
	}
	c.cacheHits.Add(1)
	return emb.Vector, true
}

func (c *Client) warnDegraded() {
	c.degradedOnce.Do(func() {
		c.logger.Warn("embedding requested without credentials, returning empty results",
			"provider", c.providerName)
	})
}

// pacer serializes embedding groups across callers and enforces a fixed gap
// between the end of one group and the start of the next.
type pacer struct {
	slot  chan struct{}
	delay time.Duration
	next  time.Time // guarded by slot
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{
		slot:  make(chan struct{}, 1),
		delay: delay,
	}
}

func (p *pacer) run(ctx context.Context, fn func()) error {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slot }()

	if wait := time.Until(p.next); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	fn()
	p.next = time.Now().Add(p.delay)
	return nil
}
