// Package embedder turns analytics text into vector embeddings.
//
// Providers (Gemini, OpenAI, Jina, and an offline hash-based local provider)
// implement the Embedder interface and make one call per text. The Client
// wraps a provider and adds text cleaning, an LRU cache and paced batching:
//
//	client, err := embedder.NewClientFromConfig(embedder.Config{
//	    Provider:  embedder.ProviderGemini,
//	    Dimension: embedder.GeminiDimension,
//	    CacheSize: embedder.DefaultCacheSize,
//	}, embedder.DefaultOptions(), embedder.WithLogger(logger))
//
//	vectors, err := client.EmbedBatch(ctx, texts)
//	for i, v := range vectors {
//	    if v == nil {
//	        // texts[i] was too short or its call failed
//	    }
//	}
//
// # Batching
//
// EmbedBatch splits the texts that need a provider call into groups of
// Options.BatchSize. Calls within a group run concurrently; the next group
// starts no earlier than Options.BatchDelay after the previous one finished.
// Pacing is per Client and shared by every caller, so one Client should be
// used process-wide.
//
// # Provider Selection
//
// DetectProvider consults the environment:
//
//  1. CRYPTIQUE_EMBEDDING_PROVIDER names the provider explicitly
//  2. GEMINI_API_KEY or GOOGLE_API_KEY selects Gemini
//  3. OPENAI_API_KEY selects OpenAI
//  4. JINA_API_KEY selects Jina
//  5. otherwise the local provider is used
//
// The config layer calls it only when no provider is configured, and keeps
// its default provider (degraded without a key) rather than falling back to
// the local one.
//
// # Missing Credentials
//
// A remote provider without an API key does not fail construction through
// NewClientFromConfig. The client is degraded instead: EmbedBatch returns a
// nil vector for every input and EmbedOne fails with an error matching
// types.ErrMissingCredentials. A warning is logged once.
package embedder
