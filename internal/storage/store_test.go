package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

const testDim = 4

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func websiteRecord(siteID string, category types.DataCategory, vec []float32) types.NewRecord {
	return types.NewRecord{
		Vector: vec,
		Text:   "website " + siteID + " " + string(category),
		Metadata: types.Metadata{
			Type:         types.TypeWebsite,
			Timestamp:    baseTime,
			Timeframe:    types.TimeframeDaily,
			DataCategory: category,
			Metrics:      []string{"visitors", "pageViews"},
			Source:       "website_analytics",
			SiteID:       siteID,
			Domain:       siteID + ".example.com",
		},
	}
}

func contractRecord(contractID string, category types.DataCategory, vec []float32) types.NewRecord {
	return types.NewRecord{
		Vector: vec,
		Text:   "contract " + contractID + " " + string(category),
		Metadata: types.Metadata{
			Type:            types.TypeContract,
			Timestamp:       baseTime,
			Timeframe:       types.TimeframeDaily,
			DataCategory:    category,
			Source:          "contract_analytics",
			ContractID:      contractID,
			ContractAddress: "0xabc",
			Blockchain:      "ethereum",
		},
	}
}

// forEachStore runs fn against a fresh store of every backend
func forEachStore(t *testing.T, fn func(t *testing.T, store VectorStore)) {
	t.Helper()

	t.Run(BackendSQLite, func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:", testDim)
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})

	t.Run(BackendBolt, func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "vectors.db"), testDim)
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})
}

func TestInsertMany(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()
		records := []types.NewRecord{
			websiteRecord("site-1", types.CategoryOverview, []float32{1, 0, 0, 0}),
			contractRecord("c-1", types.CategoryUserActivity, []float32{0, 1, 0, 0}),
		}

		res, err := store.InsertMany(ctx, records, InsertOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
		assert.Equal(t, 0, res.Skipped)
		require.Len(t, res.IDs, 2)
		assert.NotEqual(t, res.IDs[0], res.IDs[1])

		got, err := store.Get(ctx, res.IDs[0])
		require.NoError(t, err)
		assert.Equal(t, records[0].Text, got.Text)
		assert.Equal(t, records[0].Vector, got.Vector)
		assert.Equal(t, types.TypeWebsite, got.Metadata.Type)
		assert.Equal(t, "site-1", got.Metadata.SiteID)
		assert.Equal(t, []string{"visitors", "pageViews"}, got.Metadata.Metrics)
		assert.True(t, baseTime.Equal(got.Metadata.Timestamp))
		assert.False(t, got.CreatedAt.IsZero())
	})
}

func TestInsertMany_StrictRejectsWholeBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()
		records := []types.NewRecord{
			websiteRecord("site-1", types.CategoryOverview, []float32{1, 0, 0, 0}),
			websiteRecord("site-1", types.CategoryOverview, []float32{1, 0}),
			websiteRecord("site-1", types.CategoryWeb3, []float32{0, 0, 1, 0}),
		}

		_, err := store.InsertMany(ctx, records, InsertOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrValidation)

		var ve *types.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, 1, ve.Index)
		assert.Equal(t, "vector", ve.Field)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total, "nothing may be written")
	})
}

func TestInsertMany_BestEffort(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()
		nan := float32(math.NaN())

		badMeta := websiteRecord("site-1", types.CategoryUserActivity, []float32{1, 1, 0, 0})
		noText := websiteRecord("site-1", types.CategoryOverview, []float32{1, 1, 1, 0})
		noText.Text = ""

		records := []types.NewRecord{
			websiteRecord("site-1", types.CategoryOverview, []float32{1, 0, 0, 0}),
			websiteRecord("site-1", types.CategoryOverview, []float32{nan, 0, 0, 0}),
			badMeta,
			noText,
			websiteRecord("site-2", types.CategoryPerformance, []float32{0, 0, 0, 1}),
		}

		res, err := store.InsertMany(ctx, records, InsertOptions{BestEffort: true})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
		assert.Equal(t, 3, res.Skipped)
		require.Len(t, res.Rejected, 3)
		assert.Equal(t, 1, res.Rejected[0].Index)
		assert.Equal(t, "data_category", res.Rejected[1].Field)
		assert.Equal(t, "text", res.Rejected[2].Field)
	})
}

func TestInsertMany_Empty(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		res, err := store.InsertMany(context.Background(), nil, InsertOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Inserted)
	})
}

func seedSearchData(t *testing.T, store VectorStore) []string {
	t.Helper()
	later := baseTime.Add(48 * time.Hour)

	late := websiteRecord("site-2", types.CategoryOverview, []float32{0.8, 0.6, 0, 0})
	late.Metadata.Timestamp = later

	// Similarity to {1, 0, 0, 0}: 1.0, 0.994, 0.8, 0, -1, 0.5
	records := []types.NewRecord{
		websiteRecord("site-1", types.CategoryOverview, []float32{1, 0, 0, 0}),
		websiteRecord("site-1", types.CategoryWeb3, []float32{0.9, 0.1, 0, 0}),
		late,
		contractRecord("c-1", types.CategoryOverview, []float32{0, 1, 0, 0}),
		contractRecord("c-2", types.CategoryUserActivity, []float32{-1, 0, 0, 0}),
		websiteRecord("site-3", types.CategoryPerformance, []float32{0.5, 0.5, 0.5, 0.5}),
	}
	res, err := store.InsertMany(context.Background(), records, InsertOptions{})
	require.NoError(t, err)
	return res.IDs
}

func TestSearch(t *testing.T) {
	query := []float32{1, 0, 0, 0}

	tests := []struct {
		name    string
		filter  *types.Filter
		limit   int
		wantIdx []int
	}{
		{"nil filter ranks everything", nil, 10, []int{0, 1, 2, 5, 3, 4}},
		{"limit", nil, 2, []int{0, 1}},
		{"zero limit", nil, 0, []int{}},
		{"threshold", &types.Filter{MinSimilarity: 0.75}, 10, []int{0, 1, 2}},
		{"site filter", &types.Filter{SiteIDs: []string{"site-1"}}, 10, []int{0, 1}},
		{"contract filter with floor", &types.Filter{ContractIDs: []string{"c-1", "c-2"}, MinSimilarity: -1}, 10, []int{3, 4}},
		{"type filter", &types.Filter{Type: types.TypeContract, MinSimilarity: -1}, 10, []int{3, 4}},
		{"category filter", &types.Filter{DataCategory: types.CategoryOverview, MinSimilarity: -1}, 10, []int{0, 2, 3}},
		{"time range", &types.Filter{From: baseTime.Add(time.Hour), MinSimilarity: -1}, 10, []int{2}},
		{"time upper bound inclusive", &types.Filter{To: baseTime, Type: types.TypeWebsite}, 10, []int{0, 1, 5}},
		{"no match", &types.Filter{SiteIDs: []string{"missing"}}, 10, []int{}},
	}

	forEachStore(t, func(t *testing.T, store VectorStore) {
		ids := seedSearchData(t, store)
		ctx := context.Background()

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, err := store.Search(ctx, query, tt.filter, tt.limit)
				require.NoError(t, err)

				got := make([]string, len(results))
				for i, r := range results {
					got[i] = r.ID
				}
				want := make([]string, len(tt.wantIdx))
				for i, idx := range tt.wantIdx {
					want[i] = ids[idx]
				}
				assert.Equal(t, want, got)

				for i := 1; i < len(results); i++ {
					assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
				}
				if tt.filter != nil {
					for _, r := range results {
						assert.GreaterOrEqual(t, r.Similarity, tt.filter.MinSimilarity)
						assert.True(t, tt.filter.Matches(r.Metadata))
					}
				}
			})
		}
	})
}

func TestSearch_Scores(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		seedSearchData(t, store)

		results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, nil, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		assert.Equal(t, "site-1", results[0].Metadata.SiteID)
		assert.NotEmpty(t, results[0].Text)
	})
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		if s, ok := store.(*SQLiteStore); ok && s.NativeSearch() {
			t.Skip("native search does not define tie order")
		}
		ctx := context.Background()
		records := []types.NewRecord{
			websiteRecord("a", types.CategoryOverview, []float32{0, 0, 1, 0}),
			websiteRecord("b", types.CategoryOverview, []float32{0, 0, 2, 0}),
			websiteRecord("c", types.CategoryOverview, []float32{0, 0, 3, 0}),
		}
		res, err := store.InsertMany(ctx, records, InsertOptions{})
		require.NoError(t, err)

		results, err := store.Search(ctx, []float32{0, 0, 1, 0}, nil, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i := range results {
			assert.Equal(t, res.IDs[i], results[i].ID)
		}
	})
}

func TestSearch_InvalidInput(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()

		_, err := store.Search(ctx, []float32{1, 0}, nil, 5)
		assert.ErrorIs(t, err, types.ErrValidation)

		_, err = store.Search(ctx, []float32{1, 0, 0, 0}, &types.Filter{Type: "bogus"}, 5)
		assert.ErrorIs(t, err, types.ErrValidation)

		_, err = store.Search(ctx, []float32{1, 0, 0, 0}, &types.Filter{From: baseTime, To: baseTime.Add(-time.Hour)}, 5)
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

// setClock replaces the insert clock of either backend
func setClock(store VectorStore, now func() time.Time) {
	switch s := store.(type) {
	case *SQLiteStore:
		s.now = now
	case *BoltStore:
		s.now = now
	}
}

func TestDeleteOlderThan(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()

		setClock(store, func() time.Time { return baseTime.Add(-100 * 24 * time.Hour) })
		_, err := store.InsertMany(ctx, []types.NewRecord{
			websiteRecord("old", types.CategoryOverview, []float32{1, 0, 0, 0}),
			websiteRecord("old", types.CategoryWeb3, []float32{0, 1, 0, 0}),
		}, InsertOptions{})
		require.NoError(t, err)

		setClock(store, func() time.Time { return baseTime })
		fresh, err := store.InsertMany(ctx, []types.NewRecord{
			websiteRecord("new", types.CategoryOverview, []float32{1, 0, 0, 0}),
		}, InsertOptions{})
		require.NoError(t, err)

		cutoff := baseTime.Add(-90 * 24 * time.Hour)
		deleted, err := store.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		// Idempotent
		deleted, err = store.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)

		results, err := store.Search(ctx, []float32{1, 0, 0, 0}, &types.Filter{MinSimilarity: -1}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, fresh.IDs[0], results[0].ID)
		for _, r := range results {
			assert.False(t, r.CreatedAt.Before(cutoff))
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("empty criteria", func(t *testing.T) {
		forEachStore(t, func(t *testing.T, store VectorStore) {
			_, err := store.Delete(context.Background(), types.DeleteCriteria{})
			assert.ErrorIs(t, err, types.ErrEmptyCriteria)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	})

	t.Run("sites or contracts", func(t *testing.T) {
		forEachStore(t, func(t *testing.T, store VectorStore) {
			ids := seedSearchData(t, store)
			ctx := context.Background()

			deleted, err := store.Delete(ctx, types.DeleteCriteria{
				SiteIDs:     []string{"site-1"},
				ContractIDs: []string{"c-2"},
			})
			require.NoError(t, err)
			assert.Equal(t, 3, deleted)

			_, err = store.Get(ctx, ids[0])
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Get(ctx, ids[2])
			assert.NoError(t, err)
		})
	})

	t.Run("ids restricted by age", func(t *testing.T) {
		forEachStore(t, func(t *testing.T, store VectorStore) {
			ctx := context.Background()
			setClock(store, func() time.Time { return baseTime.Add(-time.Hour) })
			_, err := store.InsertMany(ctx, []types.NewRecord{
				websiteRecord("site-1", types.CategoryOverview, []float32{1, 0, 0, 0}),
			}, InsertOptions{})
			require.NoError(t, err)

			setClock(store, func() time.Time { return baseTime.Add(time.Hour) })
			_, err = store.InsertMany(ctx, []types.NewRecord{
				websiteRecord("site-1", types.CategoryWeb3, []float32{0, 1, 0, 0}),
				websiteRecord("site-2", types.CategoryOverview, []float32{0, 0, 1, 0}),
			}, InsertOptions{})
			require.NoError(t, err)

			deleted, err := store.Delete(ctx, types.DeleteCriteria{SiteIDs: []string{"site-1"}, OlderThan: baseTime})
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, stats.Total)
		})
	})
}

func TestStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, store VectorStore) {
		ctx := context.Background()

		empty, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Total)
		assert.True(t, empty.Oldest.IsZero())
		assert.Equal(t, testDim, empty.Dimension)

		seedSearchData(t, store)
		stats, err := store.Stats(ctx)
		require.NoError(t, err)

		assert.Equal(t, 6, stats.Total)
		assert.Equal(t, 4, stats.ByType[types.TypeWebsite])
		assert.Equal(t, 2, stats.ByType[types.TypeContract])
		assert.Equal(t, 3, stats.ByCategory[types.CategoryOverview])
		assert.Equal(t, 3, stats.Sites)
		assert.Equal(t, 2, stats.Contracts)
		assert.False(t, stats.Oldest.IsZero())
		assert.False(t, stats.Newest.Before(stats.Oldest))
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(BackendBolt, filepath.Join(dir, "b.db"), 8)
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open("", filepath.Join(dir, "s.db"), 8)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open("postgres", "x", 8)
	assert.Error(t, err)
}
