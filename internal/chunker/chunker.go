package chunker

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// Facet identifies one analytical view of a record
type Facet int

const (
	FacetWebsiteOverview Facet = iota
	FacetUserBehavior
	FacetWeb3Metrics
	FacetPerformance
	FacetContractOverview
	FacetUserActivity
	FacetTemporalPatterns

	numFacets
)

// facetSpec fixes what a facet's chunk is labeled with
type facetSpec struct {
	recordType types.RecordType
	name       string
	category   types.DataCategory
	metrics    []string
}

// facetTable is ordered: chunks are emitted in this order, overview first
var facetTable = [numFacets]facetSpec{
	FacetWebsiteOverview: {
		recordType: types.TypeWebsite,
		name:       "overview",
		category:   types.CategoryOverview,
		metrics:    []string{"unique_visitors", "page_views", "session_duration", "bounce_rate"},
	},
	FacetUserBehavior: {
		recordType: types.TypeWebsite,
		name:       "userBehavior",
		category:   types.CategoryUserBehavior,
		metrics:    []string{"top_pages", "page_views"},
	},
	FacetWeb3Metrics: {
		recordType: types.TypeWebsite,
		name:       "web3Metrics",
		category:   types.CategoryWeb3,
		metrics:    []string{"web3_visitors", "wallets_connected", "wallet_types"},
	},
	FacetPerformance: {
		recordType: types.TypeWebsite,
		name:       "performance",
		category:   types.CategoryPerformance,
		metrics:    []string{"load_time", "error_rate"},
	},
	FacetContractOverview: {
		recordType: types.TypeContract,
		name:       "overview",
		category:   types.CategoryOverview,
		metrics:    []string{"transaction_count", "transaction_volume", "unique_wallets"},
	},
	FacetUserActivity: {
		recordType: types.TypeContract,
		name:       "userActivity",
		category:   types.CategoryUserActivity,
		metrics:    []string{"top_senders", "transaction_size_distribution"},
	},
	FacetTemporalPatterns: {
		recordType: types.TypeContract,
		name:       "temporalPatterns",
		category:   types.CategoryTemporalPatterns,
		metrics:    []string{"active_period", "average_transaction_value"},
	},
}

func init() {
	for i, spec := range facetTable {
		if spec.name == "" || !types.ValidCategory(spec.recordType, spec.category) {
			panic(fmt.Sprintf("chunker: facet %d has invalid category %q for %s", i, spec.category, spec.recordType))
		}
	}
}

// Name returns the payload key of the facet
func (f Facet) Name() string {
	if f < 0 || f >= numFacets {
		return ""
	}
	return facetTable[f].name
}

// Category returns the data category the facet's chunk carries
func (f Facet) Category() types.DataCategory {
	if f < 0 || f >= numFacets {
		return ""
	}
	return facetTable[f].category
}

// Default sources recorded on chunks when the caller leaves Source empty
const (
	SourceWebsite  = "website_analytics"
	SourceContract = "blockchain_data"
)

// Payload maps facet names to pre-rendered summary text
type Payload map[string]string

// Set stores text under the facet's name
func (p Payload) Set(f Facet, text string) {
	p[f.Name()] = text
}

// Get returns the text stored under the facet's name
func (p Payload) Get(f Facet) string {
	return p[f.Name()]
}

// process-wide chunk sequence shared by every Chunker
var chunkSeq atomic.Int64

// Chunker turns analytics payloads into labeled chunks
type Chunker struct {
	now func() time.Time
}

// New creates a new Chunker instance
func New() *Chunker {
	return &Chunker{now: time.Now}
}

// Chunk emits one chunk per non-empty facet of the metadata's record type,
// in facet table order. Facets belonging to the other record type are ignored.
func (c *Chunker) Chunk(payload Payload, meta types.Metadata) ([]types.Chunk, error) {
	if meta.Timeframe == "" {
		meta.Timeframe = types.TimeframeDaily
	}
	if meta.Source == "" {
		meta.Source = defaultSource(meta.Type)
	}
	if err := meta.ValidateIdentity(); err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(payload))
	for i := range facetTable {
		spec := &facetTable[i]
		if spec.recordType != meta.Type {
			continue
		}

		text := strings.TrimSpace(payload[spec.name])
		if text == "" {
			continue
		}

		chunkMeta := meta
		chunkMeta.DataCategory = spec.category
		chunkMeta.Metrics = append([]string(nil), spec.metrics...)

		chunks = append(chunks, types.Chunk{
			Text:     text,
			Metadata: chunkMeta,
		})
	}

	return chunks, nil
}

// Combine concatenates chunk sequences in argument order and stamps each chunk
// with a sequential id and a shared ingestion time. It does not deduplicate.
func (c *Chunker) Combine(sources ...[]types.Chunk) []types.Chunk {
	total := 0
	for _, s := range sources {
		total += len(s)
	}

	now := c.now()
	combined := make([]types.Chunk, 0, total)
	for _, s := range sources {
		for _, ch := range s {
			ch.ID = chunkSeq.Add(1)
			ch.IngestedAt = now
			combined = append(combined, ch)
		}
	}
	return combined
}

func defaultSource(t types.RecordType) string {
	if t == types.TypeContract {
		return SourceContract
	}
	return SourceWebsite
}
