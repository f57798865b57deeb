// Package mcp implements the Model Context Protocol (MCP) server for the
// analytics retrieval pipeline.
//
// The MCP server exposes four tools to assistants answering questions about
// website and contract analytics:
//   - ingest_analytics: Chunk, embed and store analytics summaries
//   - search_analytics: Retrieve the chunks most similar to a query
//   - get_status: Report store statistics and embedding health
//   - purge_expired: Apply the retention policy or delete by site/contract
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout is reserved for the protocol.
//
// # Tool: ingest_analytics
//
//	Request:
//	{
//	  "name": "ingest_analytics",
//	  "arguments": {
//	    "type": "website",
//	    "site_id": "site-42",
//	    "domain": "app.example.xyz",
//	    "timestamp": "2024-05-31T00:00:00Z",
//	    "facets": {
//	      "overview": "Site received 980 unique visitors and 2100 page views",
//	      "web3Metrics": "61 wallets connected, Phantom and MetaMask most common"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "ingested": true,
//	  "chunks": 2,
//	  "stored": 2,
//	  "failed": 0,
//	  "skipped": 0,
//	  "ids": ["...", "..."]
//	}
//
// # Tool: search_analytics
//
//	Request:
//	{
//	  "name": "search_analytics",
//	  "arguments": {
//	    "query": "how many wallets connected last week",
//	    "limit": 5,
//	    "min_similarity": 0.7,
//	    "filters": {"site_ids": ["site-42"], "data_category": "web3"}
//	  }
//	}
//
// Results are ranked by cosine similarity, highest first. Omitted limit and
// min_similarity fall back to the configured defaults.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing arguments, malformed filters or metadata)
//   - -32603: Internal error (store failures)
//   - -32002: A purge is already running
//   - -32004: Query is empty or too short to embed
//   - -32005: No embedding provider credentials are configured
package mcp
