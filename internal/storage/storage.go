package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a store is reopened with a different dimension
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// VectorStore persists embedded chunks and answers filtered k-NN queries
type VectorStore interface {
	// InsertMany validates and writes records in one transaction
	InsertMany(ctx context.Context, records []types.NewRecord, opts InsertOptions) (*InsertResult, error)

	// Search returns at most limit records ranked by cosine similarity to query
	Search(ctx context.Context, query []float32, filter *types.Filter, limit int) ([]types.SimilarityResult, error)

	// Get returns one record by id
	Get(ctx context.Context, id string) (*types.VectorRecord, error)

	// DeleteOlderThan removes records created before cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Delete removes records matching criteria
	Delete(ctx context.Context, criteria types.DeleteCriteria) (int, error)

	Stats(ctx context.Context) (*types.StoreStats, error)
	Dimension() int

	// NativeSearch reports whether Search ranks records inside the database
	NativeSearch() bool

	Close() error
}

// InsertOptions controls how InsertMany treats invalid records
type InsertOptions struct {
	// BestEffort skips invalid records instead of failing the whole call
	BestEffort bool
}

// InsertResult reports the outcome of InsertMany
type InsertResult struct {
	Inserted int
	Skipped  int
	IDs      []string                // ids of written records, in input order
	Rejected []*types.ValidationError // why each skipped record was rejected
}

// Open creates the store for backend at path
func Open(backend, path string, dimension int) (VectorStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path, dimension)
	case BackendBolt:
		return NewBoltStore(path, dimension)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// validateRecord checks one insert candidate against the store dimension
func validateRecord(index int, r types.NewRecord, dimension int) *types.ValidationError {
	if len(r.Vector) != dimension {
		return &types.ValidationError{
			Field:  "vector",
			Index:  index,
			Reason: fmt.Sprintf("expected %d dimensions, got %d", dimension, len(r.Vector)),
		}
	}
	if !finite(r.Vector) {
		return &types.ValidationError{Field: "vector", Index: index, Reason: "contains NaN or Inf"}
	}
	if r.Text == "" {
		return &types.ValidationError{Field: "text", Index: index, Reason: "cannot be empty"}
	}
	if err := r.Metadata.Validate(); err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			return &types.ValidationError{Field: ve.Field, Index: index, Reason: ve.Reason}
		}
		return &types.ValidationError{Field: "metadata", Index: index, Reason: err.Error()}
	}
	return nil
}

// partitionRecords returns the indexes of valid records. In strict mode the
// first invalid record is returned as an error.
func partitionRecords(records []types.NewRecord, dimension int, opts InsertOptions) ([]int, []*types.ValidationError, error) {
	valid := make([]int, 0, len(records))
	var rejected []*types.ValidationError
	for i, r := range records {
		if ve := validateRecord(i, r, dimension); ve != nil {
			if !opts.BestEffort {
				return nil, nil, ve
			}
			rejected = append(rejected, ve)
			continue
		}
		valid = append(valid, i)
	}
	return valid, rejected, nil
}

// validateQuery rejects query vectors no stored record can be compared to
func validateQuery(query []float32, dimension int) error {
	if len(query) != dimension {
		return &types.ValidationError{
			Field:  "query",
			Index:  -1,
			Reason: fmt.Sprintf("expected %d dimensions, got %d", dimension, len(query)),
		}
	}
	if !finite(query) {
		return &types.ValidationError{Field: "query", Index: -1, Reason: "contains NaN or Inf"}
	}
	return nil
}

// emptyCriteriaError matches both types.ErrValidation and types.ErrEmptyCriteria
func emptyCriteriaError() error {
	return fmt.Errorf("%w: %w", types.ErrEmptyCriteria,
		&types.ValidationError{Field: "criteria", Index: -1, Reason: "no delete criteria given"})
}

func storeError(op string, err error) error {
	return &types.StoreError{Op: op, Err: err}
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func newStats(backend string, dimension int, native bool) *types.StoreStats {
	return &types.StoreStats{
		ByType:       make(map[types.RecordType]int),
		ByCategory:   make(map[types.DataCategory]int),
		Dimension:    dimension,
		Backend:      backend,
		NativeSearch: native,
	}
}
