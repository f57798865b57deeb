package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/app"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/chunker"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/embedder"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/logging"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SetProvider(embedder.ProviderLocal)
	cfg.Embedding.Dimension = 32
	cfg.Store.Path = ":memory:"

	a, err := app.New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func websiteSource(siteID string) retrieval.Source {
	payload := chunker.Payload{}
	payload.Set(chunker.FacetWebsiteOverview, "Site "+siteID+" received 980 unique visitors and 2100 page views this week")
	payload.Set(chunker.FacetWeb3Metrics, "61 wallets connected, Phantom and MetaMask were the most common wallets")
	return retrieval.Source{
		Payload: payload,
		Metadata: types.Metadata{
			Type:      types.TypeWebsite,
			SiteID:    siteID,
			Timeframe: types.TimeframeDaily,
			Timestamp: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestRunIngest(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer

	err := runIngest(context.Background(), a, []retrieval.Source{websiteSource("site-1"), websiteSource("site-2")}, false, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Sources:  2 (0 failed)")
	assert.Contains(t, out.String(), "Stored:   4")

	status, err := a.Orchestrator.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, status.Store.Total)
	assert.Equal(t, 2, status.Store.Sites)
}

func TestRunIngest_InvalidSource(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer

	bad := websiteSource("")
	err := runIngest(context.Background(), a, []retrieval.Source{websiteSource("site-1"), bad}, false, &out)
	require.Error(t, err)

	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, out.String(), "Sources:  2 (1 failed)")
}

func TestPrintResults(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		printResults(&out, nil)
		assert.Equal(t, "No matching records.\n", out.String())
	})

	t.Run("contract subject", func(t *testing.T) {
		var out bytes.Buffer
		printResults(&out, []types.SimilarityResult{{
			ID:         "r1",
			Text:       "Contract processed 120 transactions",
			Similarity: 0.91234,
			Metadata: types.Metadata{
				Type:         types.TypeContract,
				ContractID:   "c-9",
				DataCategory: types.CategoryOverview,
				Timestamp:    time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
			},
		}})
		assert.Contains(t, out.String(), "1. [0.9123] contract c-9/overview 2024-05-31T00:00:00Z")
		assert.Contains(t, out.String(), "   Contract processed 120 transactions")
	})
}

func TestPrintStatus(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, runIngest(context.Background(), a, []retrieval.Source{websiteSource("site-1")}, false, &bytes.Buffer{}))

	status, err := a.Orchestrator.Status(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	printStatus(&out, status)

	assert.Contains(t, out.String(), "Records:     2")
	assert.Contains(t, out.String(), "Dimension:   32")
	assert.Contains(t, out.String(), "web3")
	assert.Contains(t, out.String(), "Provider:    local")
}
