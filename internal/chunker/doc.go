// Package chunker divides analytics payloads into labeled text chunks for
// embedding and retrieval.
//
// A payload maps facet names to pre-rendered summary text. Each facet has a
// fixed data category and a fixed set of metric labels:
//
//	website:  overview, userBehavior, web3Metrics, performance
//	contract: overview, userActivity, temporalPatterns
//
// # Basic Usage
//
//	c := chunker.New()
//	payload := chunker.Payload{"overview": "12 wallets connected today"}
//	chunks, err := c.Chunk(payload, types.Metadata{
//	    Type:      types.TypeWebsite,
//	    SiteID:    "s1",
//	    Timestamp: time.Now(),
//	})
//
// One chunk is emitted per non-empty facet, in facet table order with overview
// first. Empty or absent facets produce nothing, so an all-empty payload yields
// an empty slice.
//
// # Combining Sources
//
// Combine concatenates chunk slices from several sources and stamps each chunk
// with a process-local sequential ID and a shared ingestion time:
//
//	all := c.Combine(websiteChunks, contractChunks)
//
// No deduplication is performed.
//
// # Rendering
//
// RenderWebsite and RenderContract turn raw metrics into a Payload. Sections
// without data are left out.
package chunker
