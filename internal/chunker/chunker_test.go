package chunker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

func websiteMeta() types.Metadata {
	return types.Metadata{
		Type:      types.TypeWebsite,
		SiteID:    "s1",
		Domain:    "example.com",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func contractMeta() types.Metadata {
	return types.Metadata{
		Type:            types.TypeContract,
		ContractID:      "c1",
		ContractAddress: "0x1234567890abcdef",
		Blockchain:      "ethereum",
		Timeframe:       types.TimeframeWeekly,
		Timestamp:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNew(t *testing.T) {
	c := New()
	assert.NotNil(t, c)
}

func TestFacetTable(t *testing.T) {
	for f := Facet(0); f < numFacets; f++ {
		spec := facetTable[f]
		assert.NotEmpty(t, spec.name, "facet %d has no name", f)
		assert.NotEmpty(t, spec.metrics, "facet %s has no metrics", spec.name)
		assert.True(t, types.ValidCategory(spec.recordType, spec.category), "facet %s", spec.name)
	}

	assert.Equal(t, "overview", FacetWebsiteOverview.Name())
	assert.Equal(t, types.CategoryWeb3, FacetWeb3Metrics.Category())
	assert.Equal(t, "", Facet(99).Name())
}

func TestChunk_OverviewOnly(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(Payload{"overview": "12 wallets connected", "userBehavior": ""}, websiteMeta())
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, types.CategoryOverview, chunks[0].Metadata.DataCategory)
	assert.Equal(t, "12 wallets connected", chunks[0].Text)
	assert.Equal(t, "s1", chunks[0].Metadata.SiteID)
	assert.Equal(t, types.TimeframeDaily, chunks[0].Metadata.Timeframe)
	assert.Equal(t, SourceWebsite, chunks[0].Metadata.Source)
	assert.Contains(t, chunks[0].Metadata.Metrics, "unique_visitors")
}

func TestChunk_AllEmpty(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		payload Payload
	}{
		{"nil payload", nil},
		{"empty map", Payload{}},
		{"blank values", Payload{"overview": "", "userBehavior": "   ", "web3Metrics": "\n\t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := c.Chunk(tt.payload, websiteMeta())
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestChunk_FacetOrder(t *testing.T) {
	c := New()
	payload := Payload{
		"performance":  "Pages loaded in 300 milliseconds",
		"web3Metrics":  "40 visitors connected wallets",
		"overview":     "120 unique visitors",
		"userBehavior": "The most visited page was home",
	}

	chunks, err := c.Chunk(payload, websiteMeta())
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	got := make([]types.DataCategory, len(chunks))
	for i, ch := range chunks {
		got[i] = ch.Metadata.DataCategory
		assert.NoError(t, ch.Validate())
	}
	assert.Equal(t, []types.DataCategory{
		types.CategoryOverview,
		types.CategoryUserBehavior,
		types.CategoryWeb3,
		types.CategoryPerformance,
	}, got)
}

func TestChunk_ContractFacets(t *testing.T) {
	c := New()
	payload := Payload{
		"overview":         "Contract had 40 transactions",
		"temporalPatterns": "Active for 12 days",
		"userBehavior":     "ignored for contracts",
	}

	chunks, err := c.Chunk(payload, contractMeta())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, types.CategoryOverview, chunks[0].Metadata.DataCategory)
	assert.Equal(t, types.CategoryTemporalPatterns, chunks[1].Metadata.DataCategory)
	assert.Equal(t, types.TimeframeWeekly, chunks[1].Metadata.Timeframe)
	assert.Equal(t, "c1", chunks[1].Metadata.ContractID)
	assert.Equal(t, SourceContract, chunks[1].Metadata.Source)
}

func TestChunk_MetricsNotShared(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(Payload{"overview": "some overview text"}, websiteMeta())
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunks[0].Metadata.Metrics[0] = "mutated"
	assert.Equal(t, "unique_visitors", facetTable[FacetWebsiteOverview].metrics[0])
}

func TestChunk_InvalidMetadata(t *testing.T) {
	c := New()

	tests := []struct {
		name   string
		mutate func(*types.Metadata)
		field  string
	}{
		{"unknown type", func(m *types.Metadata) { m.Type = "campaign" }, "type"},
		{"missing site", func(m *types.Metadata) { m.SiteID = "" }, "site_id"},
		{"bad timeframe", func(m *types.Metadata) { m.Timeframe = "monthly" }, "timeframe"},
		{"zero timestamp", func(m *types.Metadata) { m.Timestamp = time.Time{} }, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := websiteMeta()
			tt.mutate(&meta)

			_, err := c.Chunk(Payload{"overview": "text"}, meta)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)

			var vErr *types.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCombine(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &Chunker{now: func() time.Time { return fixed }}

	web, err := c.Chunk(Payload{"overview": "web overview", "performance": "fast pages"}, websiteMeta())
	require.NoError(t, err)
	con, err := c.Chunk(Payload{"overview": "contract overview"}, contractMeta())
	require.NoError(t, err)

	combined := c.Combine(web, con)
	require.Len(t, combined, 3)

	assert.Equal(t, "web overview", combined[0].Text)
	assert.Equal(t, "fast pages", combined[1].Text)
	assert.Equal(t, "contract overview", combined[2].Text)

	for i, ch := range combined {
		assert.Equal(t, fixed, ch.IngestedAt)
		if i > 0 {
			assert.Equal(t, combined[i-1].ID+1, ch.ID)
		}
	}

	// Inputs keep their zero ids
	assert.Zero(t, web[0].ID)
}

func TestCombine_NoDeduplication(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(Payload{"overview": "same text"}, websiteMeta())
	require.NoError(t, err)

	combined := c.Combine(chunks, chunks)
	require.Len(t, combined, 2)
	assert.Equal(t, combined[0].Text, combined[1].Text)
	assert.NotEqual(t, combined[0].ID, combined[1].ID)
}

func TestCombine_IDsIncreaseAcrossCalls(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(Payload{"overview": "text one"}, websiteMeta())
	require.NoError(t, err)

	first := c.Combine(chunks)
	second := c.Combine(chunks)
	assert.Greater(t, second[0].ID, first[0].ID)
	assert.Empty(t, c.Combine())
}
