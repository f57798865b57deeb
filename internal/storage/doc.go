// Package storage persists embedded analytics chunks and answers filtered
// nearest-neighbor queries.
//
// Two VectorStore backends are provided:
//   - SQLiteStore: the default. Records live in the vector_records table.
//   - BoltStore: a single bbolt file, useful where SQLite is unavailable.
//
// # Search Paths
//
// SQLiteStore computes similarity in SQL with vec_distance_cosine when built
// with the sqlite_vec tag, which links the sqlite-vec extension and registers
// it on every connection:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// The store confirms the extension with SELECT vec_version() when it opens;
// if the call fails it uses the Go path instead. NativeSearch and
// StoreStats.NativeSearch report the path in use.
//
// Without the tag (or with purego) it uses modernc.org/sqlite, applies the
// filter in SQL, and ranks the remaining candidates in Go with
// similarity.TopK. BoltStore always ranks in Go after filtering with
// types.Filter.Matches.
//
// Both paths return results by descending similarity and apply the filter's
// MinSimilarity as an inclusive floor. A nil filter applies no floor. The Go
// path keeps equal scores in insertion order; the SQL path leaves tie order
// to SQLite, so the two may disagree on ties.
//
// # Basic Usage
//
//	store, err := storage.Open(storage.BackendSQLite, "~/.cryptique/rag.db", 768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	res, err := store.InsertMany(ctx, records, storage.InsertOptions{})
//	hits, err := store.Search(ctx, queryVec, &types.Filter{
//	    SiteIDs:       []string{"site-1"},
//	    MinSimilarity: 0.7,
//	}, 5)
//
// # Validation
//
// InsertMany validates every record before writing anything: the vector must
// have the store dimension and be finite, the text must be non-empty and the
// metadata must pass types.Metadata.Validate. In strict mode the first
// invalid record fails the call with a *types.ValidationError naming its
// index; with InsertOptions.BestEffort invalid records are skipped and
// reported in InsertResult.Rejected. Valid records are written in one
// transaction.
//
// # Retention
//
// DeleteOlderThan removes records whose CreatedAt is before the cutoff.
// Delete matches records whose site or contract is listed and, when
// OlderThan is set, that are also older than it.
//
// # Schema
//
// The SQLite schema is versioned with semantic versions and applied by
// ApplyMigrations on open. The store dimension is recorded on first open;
// reopening with a different dimension fails with ErrDimensionMismatch.
// Store failures are returned as *types.StoreError and are never retried.
package storage
