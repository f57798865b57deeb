package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// filterProperties describes the metadata filter shared by search and purge
func filterProperties() map[string]interface{} {
	return map[string]interface{}{
		"type": map[string]interface{}{
			"type":        "string",
			"description": "Restrict to website or contract records",
			"enum":        []string{"website", "contract"},
		},
		"site_ids": map[string]interface{}{
			"type":        "array",
			"description": "Restrict to these website site IDs",
			"items":       map[string]interface{}{"type": "string"},
		},
		"contract_ids": map[string]interface{}{
			"type":        "array",
			"description": "Restrict to these contract IDs",
			"items":       map[string]interface{}{"type": "string"},
		},
		"from": map[string]interface{}{
			"type":        "string",
			"description": "Earliest analytics timestamp (RFC 3339), inclusive",
		},
		"to": map[string]interface{}{
			"type":        "string",
			"description": "Latest analytics timestamp (RFC 3339), inclusive",
		},
		"data_category": map[string]interface{}{
			"type":        "string",
			"description": "Restrict to one analytical category",
			"enum": []string{
				"overview", "user_behavior", "web3", "performance",
				"user_activity", "temporal_patterns",
			},
		},
	}
}

// ingestAnalyticsTool returns the tool definition for ingest_analytics
func ingestAnalyticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_analytics",
		Description: "Chunk, embed and store pre-rendered analytics summaries for one website or contract",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Record type of the analytics source",
					"enum":        []string{"website", "contract"},
				},
				"site_id": map[string]interface{}{
					"type":        "string",
					"description": "Website site ID (required for website records)",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Website domain",
				},
				"contract_id": map[string]interface{}{
					"type":        "string",
					"description": "Contract ID (required for contract records)",
				},
				"contract_address": map[string]interface{}{
					"type":        "string",
					"description": "On-chain contract address",
				},
				"blockchain": map[string]interface{}{
					"type":        "string",
					"description": "Chain the contract is deployed on",
				},
				"timestamp": map[string]interface{}{
					"type":        "string",
					"description": "Time the analytics describe (RFC 3339); defaults to now",
				},
				"timeframe": map[string]interface{}{
					"type":        "string",
					"description": "Aggregation window of the analytics",
					"enum":        []string{"realtime", "hourly", "daily", "weekly"},
					"default":     "daily",
				},
				"facets": map[string]interface{}{
					"type": "object",
					"description": "Summary text per facet. Website facets: overview, userBehavior, web3Metrics, performance. " +
						"Contract facets: overview, userActivity, temporalPatterns.",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"type", "facets"},
		},
	}
}

// searchAnalyticsTool returns the tool definition for search_analytics
func searchAnalyticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_analytics",
		Description: "Find stored analytics chunks semantically similar to a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question or keywords",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100); defaults to the configured top-K",
					"minimum":     1,
					"maximum":     100,
				},
				"min_similarity": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (-1.0 to 1.0); defaults to the configured threshold",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional metadata filters",
					"properties":  filterProperties(),
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report vector store statistics and embedding provider health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// purgeExpiredTool returns the tool definition for purge_expired
func purgeExpiredTool() mcp.Tool {
	return mcp.Tool{
		Name: "purge_expired",
		Description: "Delete records past the retention period, or records of specific sites or contracts. " +
			"With no arguments the configured retention policy is applied.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"site_ids": map[string]interface{}{
					"type":        "array",
					"description": "Delete records of these site IDs",
					"items":       map[string]interface{}{"type": "string"},
				},
				"contract_ids": map[string]interface{}{
					"type":        "array",
					"description": "Delete records of these contract IDs",
					"items":       map[string]interface{}{"type": "string"},
				},
				"older_than": map[string]interface{}{
					"type":        "string",
					"description": "Only delete records stored before this time (RFC 3339)",
				},
			},
		},
	}
}
