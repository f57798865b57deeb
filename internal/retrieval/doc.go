// Package retrieval composes the chunker, the embedding client and a vector
// store into the ingestion and query paths.
//
// Ingestion:
//
//	payload -> Chunk -> Combine -> EmbedBatch -> InsertMany
//
// Chunks too short to embed are counted as skipped, and chunks whose embedding
// failed are counted as failed; neither is retried. Query embeds the text with
// a single EmbedOne call and searches the store with the given filter and
// similarity threshold.
//
// An Orchestrator is built once per process with New and shared. IngestAll
// runs independent ingestions on an ants worker pool; every ingestion goes
// through the same client, so batch pacing applies across all of them.
//
// Purge enforces the retention policy by deleting records older than the
// configured max age. Only one purge runs at a time.
package retrieval
