// Package app wires configuration into the process-wide embedding client,
// vector store and orchestrator shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/embedder"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/storage"
)

// App holds the components built from one configuration
type App struct {
	Config       *config.Config
	Client       *embedder.Client
	Store        storage.VectorStore
	Orchestrator *retrieval.Orchestrator
	Logger       *slog.Logger
}

// New builds the embedding client, opens the store and creates the
// orchestrator. Missing provider credentials leave the client degraded
// rather than failing.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := embedder.NewClientFromConfig(cfg.EmbedderConfig(), cfg.ClientOptions(),
		embedder.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	path, err := cfg.StorePath()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.Open(cfg.Store.Backend, path, cfg.Embedding.Dimension)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	orch, err := retrieval.New(client, store,
		retrieval.WithLogger(logger),
		retrieval.WithPoolSize(cfg.Retrieval.IngestWorkers),
		retrieval.WithDefaults(cfg.Retrieval.TopK, cfg.Retrieval.MinSimilarity),
		retrieval.WithRetention(cfg.Retention.MaxAge),
		retrieval.WithQueryCache(cfg.Retrieval.QueryCacheSize, cfg.Retrieval.QueryCacheTTL),
	)
	if err != nil {
		_ = store.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize retrieval: %w", err)
	}

	logger.Info("pipeline ready",
		"provider", client.Provider(),
		"model", client.Model(),
		"dimension", store.Dimension(),
		"backend", cfg.Store.Backend,
		"path", path,
		"native_search", store.NativeSearch(),
		"embeddings_available", client.Available())

	return &App{
		Config:       cfg,
		Client:       client,
		Store:        store,
		Orchestrator: orch,
		Logger:       logger,
	}, nil
}

// Close releases the worker pool, the store and the provider
func (a *App) Close() error {
	a.Orchestrator.Release()
	return errors.Join(a.Store.Close(), a.Client.Close())
}
