package types

import (
	"math"
	"time"
)

// NewRecord is the input to a vector store insert
type NewRecord struct {
	Vector   []float32
	Text     string
	Metadata Metadata
}

// VectorRecord is a persisted vector with its text and metadata.
// Records are immutable once stored; they are only ever deleted.
type VectorRecord struct {
	ID        string
	Vector    []float32
	Text      string
	Metadata  Metadata
	CreatedAt time.Time
}

// SimilarityResult is one ranked hit of a search. It is never persisted.
type SimilarityResult struct {
	ID         string
	Similarity float64
	Text       string
	Metadata   Metadata
	CreatedAt  time.Time
}

// Filter narrows a search. Zero-valued fields do not constrain.
// From and To bound Metadata.Timestamp inclusively.
type Filter struct {
	Type          RecordType
	SiteIDs       []string
	ContractIDs   []string
	From          time.Time
	To            time.Time
	DataCategory  DataCategory
	MinSimilarity float64
}

// Threshold returns the similarity floor applied by a search. A nil filter
// has no floor.
func (f *Filter) Threshold() float64 {
	if f == nil {
		return math.Inf(-1)
	}
	return f.MinSimilarity
}

// Matches reports whether metadata satisfies the filter's predicates
func (f *Filter) Matches(m Metadata) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if len(f.SiteIDs) > 0 && !contains(f.SiteIDs, m.SiteID) {
		return false
	}
	if len(f.ContractIDs) > 0 && !contains(f.ContractIDs, m.ContractID) {
		return false
	}
	if !f.From.IsZero() && m.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && m.Timestamp.After(f.To) {
		return false
	}
	if f.DataCategory != "" && m.DataCategory != f.DataCategory {
		return false
	}
	return true
}

// Validate checks the filter for contradictory or unknown values
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Type != "" && f.Type != TypeWebsite && f.Type != TypeContract {
		return &ValidationError{Field: "type", Index: -1, Reason: "unknown record type " + string(f.Type)}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return &ValidationError{Field: "from", Index: -1, Reason: "must not be after to"}
	}
	if f.MinSimilarity < -1 || f.MinSimilarity > 1 {
		return &ValidationError{Field: "min_similarity", Index: -1, Reason: "must be between -1 and 1"}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// IngestResult reports what happened to the chunks of one ingestion
type IngestResult struct {
	Chunks  int      // chunks produced by the chunker
	Success int      // records written to the store
	Failed  int      // chunks whose embedding failed or was rejected
	Skipped int      // chunks too short to embed
	IDs     []string // ids of the written records, in chunk order
}

// DeleteCriteria selects records for deletion. Site and contract lists are
// OR-ed together; OlderThan, when set, further restricts the match.
type DeleteCriteria struct {
	SiteIDs     []string
	ContractIDs []string
	OlderThan   time.Time
}

// Empty reports whether no criterion is set
func (c DeleteCriteria) Empty() bool {
	return len(c.SiteIDs) == 0 && len(c.ContractIDs) == 0 && c.OlderThan.IsZero()
}

// StoreStats summarizes a vector store's contents
type StoreStats struct {
	Total        int
	ByType       map[RecordType]int
	ByCategory   map[DataCategory]int
	Sites        int
	Contracts    int
	Oldest       time.Time
	Newest       time.Time
	Dimension    int
	Backend      string
	NativeSearch bool
}
