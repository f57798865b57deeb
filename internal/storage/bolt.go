package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

var (
	bucketRecords = []byte("records")
	bucketIDs     = []byte("record_ids")
	bucketInfo    = []byte("info")
	keyDimension  = []byte("dimension")
)

// BoltStore implements VectorStore on a bbolt file. Records are keyed by a
// big-endian sequence number so cursor order is insertion order. Search is
// always a full scan ranked in Go.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
	now       func() time.Time
}

type boltRecord struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"v"`
	Text      string         `json:"text"`
	Metadata  types.Metadata `json:"meta"`
	CreatedAt int64          `json:"created_at"`
}

func (r *boltRecord) toRecord() *types.VectorRecord {
	return &types.VectorRecord{
		ID:        r.ID,
		Vector:    r.Vector,
		Text:      r.Text,
		Metadata:  r.Metadata,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// NewBoltStore opens or creates a bbolt store at path
func NewBoltStore(path string, dimension int) (*BoltStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketIDs, bucketInfo} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}

		info := tx.Bucket(bucketInfo)
		want := strconv.Itoa(dimension)
		stored := info.Get(keyDimension)
		if stored == nil {
			return info.Put(keyDimension, []byte(want))
		}
		if string(stored) != want {
			return fmt.Errorf("%w: store holds %s-dimensional vectors, configured %d", ErrDimensionMismatch, stored, dimension)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, dimension: dimension, now: time.Now}, nil
}

// Close closes the bolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Dimension returns the vector dimension of the store
func (s *BoltStore) Dimension() int {
	return s.dimension
}

// NativeSearch is always false; bbolt has no vector functions
func (s *BoltStore) NativeSearch() bool {
	return false
}

// InsertMany validates records and writes the valid ones in one transaction
func (s *BoltStore) InsertMany(ctx context.Context, records []types.NewRecord, opts InsertOptions) (*InsertResult, error) {
	valid, rejected, err := partitionRecords(records, s.dimension, opts)
	if err != nil {
		return nil, err
	}

	result := &InsertResult{
		Skipped:  len(rejected),
		Rejected: rejected,
		IDs:      make([]string, 0, len(valid)),
	}
	if len(valid) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	createdAt := s.now().UnixNano()
	ids := make([]string, 0, len(valid))
	err = s.db.Update(func(tx *bbolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		idx := tx.Bucket(bucketIDs)

		for _, i := range valid {
			seq, err := recs.NextSequence()
			if err != nil {
				return err
			}
			key := seqKey(seq)

			r := records[i]
			stored := boltRecord{
				ID:        uuid.NewString(),
				Vector:    r.Vector,
				Text:      r.Text,
				Metadata:  r.Metadata,
				CreatedAt: createdAt,
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}

			if err := recs.Put(key, data); err != nil {
				return err
			}
			if err := idx.Put([]byte(stored.ID), key); err != nil {
				return err
			}
			ids = append(ids, stored.ID)
		}
		return nil
	})
	if err != nil {
		return nil, storeError("insert", fmt.Errorf("failed to insert records: %w", err))
	}

	result.IDs = ids
	result.Inserted = len(ids)
	return result, nil
}

// Search scans every record in insertion order, pre-filters and ranks
func (s *BoltStore) Search(ctx context.Context, query []float32, filter *types.Filter, limit int) ([]types.SimilarityResult, error) {
	if err := validateQuery(query, s.dimension); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.SimilarityResult{}, nil
	}

	candidates := make([]*types.VectorRecord, 0, 256)
	err := s.scan(ctx, func(_ []byte, r *boltRecord) error {
		if len(r.Vector) != len(query) || !filter.Matches(r.Metadata) {
			return nil
		}
		candidates = append(candidates, r.toRecord())
		return nil
	})
	if err != nil {
		return nil, storeError("search", err)
	}

	return rankRecords(query, candidates, filter.Threshold(), limit), nil
}

// Get returns one record by id
func (s *BoltStore) Get(ctx context.Context, id string) (*types.VectorRecord, error) {
	var rec *types.VectorRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketIDs).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketRecords).Get(key)
		if data == nil {
			return ErrNotFound
		}

		var stored boltRecord
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		rec = stored.toRecord()
		return nil
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	return rec, nil
}

// DeleteOlderThan removes records created before cutoff
func (s *BoltStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	c := cutoff.UnixNano()
	return s.deleteMatching(ctx, func(r *boltRecord) bool {
		return r.CreatedAt < c
	})
}

// Delete removes records whose site or contract is listed, optionally
// restricted to those created before criteria.OlderThan
func (s *BoltStore) Delete(ctx context.Context, criteria types.DeleteCriteria) (int, error) {
	if criteria.Empty() {
		return 0, emptyCriteriaError()
	}

	sites := toSet(criteria.SiteIDs)
	contracts := toSet(criteria.ContractIDs)
	hasIDs := len(sites) > 0 || len(contracts) > 0
	cutoff := criteria.OlderThan.UnixNano()

	return s.deleteMatching(ctx, func(r *boltRecord) bool {
		if hasIDs {
			_, site := sites[r.Metadata.SiteID]
			_, contract := contracts[r.Metadata.ContractID]
			if !site && !contract {
				return false
			}
		}
		if !criteria.OlderThan.IsZero() && r.CreatedAt >= cutoff {
			return false
		}
		return true
	})
}

func (s *BoltStore) deleteMatching(ctx context.Context, match func(*boltRecord) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		idx := tx.Bucket(bucketIDs)

		type victim struct {
			key []byte
			id  string
		}
		var victims []victim

		err := recs.ForEach(func(k, v []byte) error {
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			if match(&r) {
				// k is only valid for the life of the transaction
				victims = append(victims, victim{key: append([]byte(nil), k...), id: r.ID})
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, v := range victims {
			if err := recs.Delete(v.key); err != nil {
				return err
			}
			if err := idx.Delete([]byte(v.id)); err != nil {
				return err
			}
		}
		deleted = len(victims)
		return nil
	})
	if err != nil {
		return 0, storeError("delete", fmt.Errorf("failed to delete records: %w", err))
	}
	return deleted, nil
}

// Stats summarizes the store contents
func (s *BoltStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := newStats(BackendBolt, s.dimension, false)
	sites := make(map[string]struct{})
	contracts := make(map[string]struct{})

	err := s.scan(ctx, func(_ []byte, r *boltRecord) error {
		stats.Total++
		stats.ByType[r.Metadata.Type]++
		stats.ByCategory[r.Metadata.DataCategory]++
		if r.Metadata.SiteID != "" {
			sites[r.Metadata.SiteID] = struct{}{}
		}
		if r.Metadata.ContractID != "" {
			contracts[r.Metadata.ContractID] = struct{}{}
		}

		created := time.Unix(0, r.CreatedAt).UTC()
		if stats.Oldest.IsZero() || created.Before(stats.Oldest) {
			stats.Oldest = created
		}
		if created.After(stats.Newest) {
			stats.Newest = created
		}
		return nil
	})
	if err != nil {
		return nil, storeError("stats", err)
	}

	stats.Sites = len(sites)
	stats.Contracts = len(contracts)
	return stats, nil
}

// scan decodes every record in key order
func (s *BoltStore) scan(ctx context.Context, fn func(key []byte, r *boltRecord) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			if err := fn(k, &r); err != nil {
				return err
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
