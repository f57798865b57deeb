// Package types provides the shared domain types of the analytics retrieval
// pipeline.
//
// # Core Types
//
// Chunk is one labeled unit of analytics summary text. Its Metadata is
// discriminated by RecordType: website chunks carry a site identity, contract
// chunks carry a contract identity.
//
//	chunk := types.Chunk{
//	    Text: "Website example.com had 120 unique visitors and 340 total page views.",
//	    Metadata: types.Metadata{
//	        Type:         types.TypeWebsite,
//	        SiteID:       "s1",
//	        Timeframe:    types.TimeframeDaily,
//	        DataCategory: types.CategoryOverview,
//	        Timestamp:    time.Now(),
//	    },
//	}
//
// The data category must belong to the record type. Website records accept
// overview, user_behavior, web3 and performance; contract records accept
// overview, user_activity and temporal_patterns.
//
// VectorRecord is what a store persists; SimilarityResult is what a search
// returns. Filter narrows a search by type, site or contract membership,
// timestamp range, category and a similarity floor.
//
// # Errors
//
// Failures fall into three categories, matched with errors.Is:
//
//	errors.Is(err, types.ErrValidation) // malformed input, never coerced
//	errors.Is(err, types.ErrProvider)   // embedding call failed
//	errors.Is(err, types.ErrStore)      // backing store failed
//
// EmbedError wraps whatever prevented a single text from being embedded.
package types
