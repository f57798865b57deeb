package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/chunker"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/embedder"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

var (
	ErrClientRequired    = errors.New("embedding client is required")
	ErrStoreRequired     = errors.New("vector store is required")
	ErrPurgeInProgress   = errors.New("purge already in progress")
	ErrDimensionMismatch = errors.New("embedding and store dimensions differ")
)

// Defaults applied when no option overrides them
const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.7
	DefaultPoolSize      = 4
	MaxTopK              = 100
)

// Source is one analytics payload to ingest
type Source struct {
	Payload  chunker.Payload
	Metadata types.Metadata
}

// SourceDoneFunc is called by IngestAll as each source finishes
type SourceDoneFunc func(index int, result *types.IngestResult, err error)

// Orchestrator composes chunking, embedding and storage for ingestion, and
// embedding and search for queries
type Orchestrator struct {
	chunker *chunker.Chunker
	client  *embedder.Client
	store   storage.VectorStore
	pool    *ants.Pool
	logger  *slog.Logger

	topK       int
	threshold  float64
	maxAge     time.Duration
	onDone     SourceDoneFunc
	queryCache *queryCache

	purgeLock PurgeLock
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "retrieval")
		return nil
	}
}

// WithPoolSize sets how many sources IngestAll processes at once.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithDefaults sets the top-K used when Query gets k <= 0 and the threshold
// reported by Defaults
func WithDefaults(topK int, minSimilarity float64) Option {
	return func(o *Orchestrator) error {
		if topK < 1 || topK > MaxTopK {
			return fmt.Errorf("top-k must be between 1 and %d, got %d", MaxTopK, topK)
		}
		if minSimilarity < -1 || minSimilarity > 1 {
			return fmt.Errorf("min similarity must be between -1 and 1, got %v", minSimilarity)
		}
		o.topK = topK
		o.threshold = minSimilarity
		return nil
	}
}

// WithRetention sets the maximum record age enforced by Purge. Zero disables purging.
func WithRetention(maxAge time.Duration) Option {
	return func(o *Orchestrator) error {
		if maxAge < 0 {
			return fmt.Errorf("retention must not be negative, got %s", maxAge)
		}
		o.maxAge = maxAge
		return nil
	}
}

// WithQueryCache caches query results for ttl. Any write to the store
// through the orchestrator clears the cache.
func WithQueryCache(size int, ttl time.Duration) Option {
	return func(o *Orchestrator) error {
		if size <= 0 || ttl <= 0 {
			o.queryCache = nil
			return nil
		}
		o.queryCache = newQueryCache(size, ttl)
		return nil
	}
}

// WithSourceDone registers a callback invoked as each IngestAll source finishes
func WithSourceDone(fn SourceDoneFunc) Option {
	return func(o *Orchestrator) error {
		o.onDone = fn
		return nil
	}
}

// New creates an Orchestrator over an embedding client and a vector store
func New(client *embedder.Client, store storage.VectorStore, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if client.Dimension() != 0 && client.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("%w: client %d, store %d", ErrDimensionMismatch, client.Dimension(), store.Dimension())
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		chunker:   chunker.New(),
		client:    client,
		store:     store,
		pool:      pool,
		logger:    slog.Default().With("component", "retrieval"),
		topK:      DefaultTopK,
		threshold: DefaultMinSimilarity,
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}
	return o, nil
}

// Release frees the worker pool. The client and store are owned by the caller.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// Ingest chunks one payload, embeds the chunks and stores the vectors.
// Chunks too short to embed are counted as Skipped; chunks whose embedding
// failed or was rejected are counted as Failed. Neither is retried.
func (o *Orchestrator) Ingest(ctx context.Context, payload chunker.Payload, meta types.Metadata) (*types.IngestResult, error) {
	chunks, err := o.chunker.Chunk(payload, meta)
	if err != nil {
		return nil, err
	}
	chunks = o.chunker.Combine(chunks)

	result := &types.IngestResult{Chunks: len(chunks)}

	kept := make([]types.Chunk, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := o.client.Prepare(c.Text); !ok {
			result.Skipped++
			continue
		}
		kept = append(kept, c)
		texts = append(texts, c.Text)
	}
	if len(kept) == 0 {
		return result, nil
	}

	vectors, err := o.client.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	records := make([]types.NewRecord, 0, len(kept))
	for i, vec := range vectors {
		if vec == nil {
			result.Failed++
			continue
		}
		if err := embedder.ValidateVector(vec, o.store.Dimension()); err != nil {
			o.logger.Warn("dropping invalid embedding", "chunk", kept[i].ID, "err", err)
			result.Failed++
			continue
		}
		records = append(records, types.NewRecord{
			Vector:   vec,
			Text:     kept[i].Text,
			Metadata: kept[i].Metadata,
		})
	}
	if len(records) == 0 {
		o.logger.Warn("no chunks embedded", "type", meta.Type, "failed", result.Failed)
		return result, nil
	}

	res, err := o.store.InsertMany(ctx, records, storage.InsertOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	o.invalidate()

	result.Success = res.Inserted
	result.IDs = res.IDs

	o.logger.Info("ingested analytics",
		"type", meta.Type,
		"site_id", meta.SiteID,
		"contract_id", meta.ContractID,
		"chunks", result.Chunks,
		"stored", result.Success,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, nil
}

// IngestAll ingests sources concurrently on the worker pool. Results align
// with sources; a source that failed has a nil result. The first error, by
// source index, is returned after every source has finished.
func (o *Orchestrator) IngestAll(ctx context.Context, sources []Source) ([]*types.IngestResult, error) {
	results := make([]*types.IngestResult, len(sources))
	errs := make([]error, len(sources))

	var (
		wg sync.WaitGroup
		mu sync.Mutex // serializes onDone
	)
	for i, src := range sources {
		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = o.Ingest(ctx, src.Payload, src.Metadata)
			if o.onDone != nil {
				mu.Lock()
				o.onDone(i, results[i], errs[i])
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("failed to submit source: %w", err)
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return results, nil
}

// Query embeds text and returns at most k records with similarity of at
// least threshold that match filter. A k of zero or less uses the default
// top-K. Filter.MinSimilarity is ignored in favor of threshold.
func (o *Orchestrator) Query(ctx context.Context, text string, filter *types.Filter, k int, threshold float64) ([]types.SimilarityResult, error) {
	if k <= 0 {
		k = o.topK
	}
	if k > MaxTopK {
		k = MaxTopK
	}

	f := types.Filter{}
	if filter != nil {
		f = *filter
	}
	f.MinSimilarity = threshold

	if err := f.Validate(); err != nil {
		return nil, err
	}

	var (
		cacheKey [32]byte
		cacheGen uint64
	)
	if o.queryCache != nil {
		cacheKey = queryKey(text, &f, k)
		if cached, ok := o.queryCache.get(cacheKey); ok {
			return cached, nil
		}
		cacheGen = o.queryCache.generation()
	}

	vec, err := o.client.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := embedder.ValidateVector(vec, o.store.Dimension()); err != nil {
		return nil, &types.EmbedError{Err: err}
	}

	results, err := o.store.Search(ctx, vec, &f, k)
	if err != nil {
		return nil, err
	}

	if o.queryCache != nil {
		o.queryCache.set(cacheKey, results, cacheGen)
	}
	return results, nil
}

// Defaults returns the configured top-K and similarity threshold
func (o *Orchestrator) Defaults() (topK int, minSimilarity float64) {
	return o.topK, o.threshold
}

// Purge deletes records older than the retention max age as of now.
// It is a no-op when no retention is configured.
func (o *Orchestrator) Purge(ctx context.Context, now time.Time) (int, error) {
	if o.maxAge == 0 {
		return 0, nil
	}
	return o.withPurgeLock(func() (int, error) {
		cutoff := now.Add(-o.maxAge)
		n, err := o.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to purge expired records: %w", err)
		}
		o.logger.Info("purged expired records", "cutoff", cutoff, "deleted", n)
		return n, nil
	})
}

// PurgeMatching deletes records selected by criteria
func (o *Orchestrator) PurgeMatching(ctx context.Context, criteria types.DeleteCriteria) (int, error) {
	return o.withPurgeLock(func() (int, error) {
		n, err := o.store.Delete(ctx, criteria)
		if err != nil {
			return 0, err
		}
		o.logger.Info("deleted records",
			"sites", len(criteria.SiteIDs),
			"contracts", len(criteria.ContractIDs),
			"older_than", criteria.OlderThan,
			"deleted", n)
		return n, nil
	})
}

func (o *Orchestrator) withPurgeLock(fn func() (int, error)) (int, error) {
	if !o.purgeLock.TryAcquire() {
		return 0, ErrPurgeInProgress
	}
	defer o.purgeLock.Release()

	n, err := fn()
	if n > 0 {
		o.invalidate()
	}
	return n, err
}

// Status describes the orchestrator's collaborators
type Status struct {
	Store         *types.StoreStats
	Embedding     embedder.Stats
	TopK          int
	Threshold     float64
	MaxAge        time.Duration
	CachedQueries int
}

// Status returns store statistics and embedding client counters
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status := &Status{
		Store:     stats,
		Embedding: o.client.Stats(),
		TopK:      o.topK,
		Threshold: o.threshold,
		MaxAge:    o.maxAge,
	}
	if o.queryCache != nil {
		status.CachedQueries = o.queryCache.len()
	}
	return status, nil
}

// MaxAge returns the configured retention
func (o *Orchestrator) MaxAge() time.Duration {
	return o.maxAge
}

func (o *Orchestrator) invalidate() {
	if o.queryCache != nil {
		o.queryCache.purge()
	}
}
