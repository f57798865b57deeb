package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/chunker"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodePurgeInProgress      = -32002 // Another purge is already running
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty or too short
	ErrorCodeEmbeddingUnavailable = -32005 // No embedding provider credentials
)

// handleIngestAnalytics handles the ingest_analytics tool invocation
func (s *Server) handleIngestAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	meta, err := parseMetadata(args, s.now())
	if err != nil {
		return nil, err
	}

	rawFacets, ok := args["facets"].(map[string]interface{})
	if !ok || len(rawFacets) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "facets parameter is required", map[string]interface{}{
			"param":  "facets",
			"reason": "missing or empty",
		})
	}
	payload := make(chunker.Payload, len(rawFacets))
	for name, v := range rawFacets {
		text, ok := v.(string)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "facet text must be a string", map[string]interface{}{
				"param": "facets." + name,
			})
		}
		payload[name] = text
	}

	start := time.Now()
	result, err := s.orchestrator.Ingest(ctx, payload, meta)
	if err != nil {
		return nil, toolError("ingestion failed", err)
	}

	response := map[string]interface{}{
		"ingested":    result.Success > 0,
		"chunks":      result.Chunks,
		"stored":      result.Success,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
		"ids":         result.IDs,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchAnalytics handles the search_analytics tool invocation
func (s *Server) handleSearchAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK, threshold := s.orchestrator.Defaults()

	limit := getIntDefault(args, "limit", topK)
	if limit < 1 || limit > retrieval.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	minSimilarity := getFloatDefault(args, "min_similarity", threshold)

	var filter *types.Filter
	if raw, ok := args["filters"].(map[string]interface{}); ok {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	start := time.Now()
	results, err := s.orchestrator.Query(ctx, query, filter, limit, minSimilarity)
	if err != nil {
		return nil, toolError("search failed", err)
	}

	items := make([]map[string]interface{}, len(results))
	for i, r := range results {
		items[i] = formatResult(i+1, r)
	}

	response := map[string]interface{}{
		"query":          query,
		"count":          len(results),
		"min_similarity": minSimilarity,
		"results":        items,
		"duration_ms":    time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.orchestrator.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	store := status.Store
	byType := make(map[string]int, len(store.ByType))
	for t, n := range store.ByType {
		byType[string(t)] = n
	}
	byCategory := make(map[string]int, len(store.ByCategory))
	for c, n := range store.ByCategory {
		byCategory[string(c)] = n
	}

	statistics := map[string]interface{}{
		"total_records": store.Total,
		"by_type":       byType,
		"by_category":   byCategory,
		"sites":         store.Sites,
		"contracts":     store.Contracts,
		"dimension":     store.Dimension,
	}
	if !store.Oldest.IsZero() {
		statistics["oldest"] = store.Oldest.Format(time.RFC3339)
		statistics["newest"] = store.Newest.Format(time.RFC3339)
	}

	emb := status.Embedding
	response := map[string]interface{}{
		"statistics": statistics,
		"store": map[string]interface{}{
			"backend":       store.Backend,
			"native_search": store.NativeSearch,
		},
		"embedding": map[string]interface{}{
			"provider":   emb.Provider,
			"model":      emb.Model,
			"dimension":  emb.Dimension,
			"calls":      emb.Calls,
			"failures":   emb.Failures,
			"skipped":    emb.Skipped,
			"cache_hits": emb.CacheHits,
		},
		"retrieval": map[string]interface{}{
			"top_k":          status.TopK,
			"min_similarity": status.Threshold,
			"retention":      status.MaxAge.String(),
			"cached_queries": status.CachedQueries,
		},
		"health": map[string]interface{}{
			"database_accessible":  true,
			"embeddings_available": !emb.Degraded,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePurgeExpired handles the purge_expired tool invocation
func (s *Server) handlePurgeExpired(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	criteria := types.DeleteCriteria{
		SiteIDs:     getStringSlice(args, "site_ids"),
		ContractIDs: getStringSlice(args, "contract_ids"),
	}
	if raw := getStringDefault(args, "older_than", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, invalidTime("older_than", err)
		}
		criteria.OlderThan = t
	}

	response := map[string]interface{}{}
	if criteria.Empty() {
		now := s.now()
		deleted, err := s.orchestrator.Purge(ctx, now)
		if err != nil {
			return nil, toolError("purge failed", err)
		}
		response["mode"] = "retention"
		response["deleted"] = deleted
		if maxAge := s.orchestrator.MaxAge(); maxAge > 0 {
			response["cutoff"] = now.Add(-maxAge).Format(time.RFC3339)
		} else {
			response["message"] = "No retention period configured; nothing to purge."
		}
	} else {
		deleted, err := s.orchestrator.PurgeMatching(ctx, criteria)
		if err != nil {
			return nil, toolError("purge failed", err)
		}
		response["mode"] = "criteria"
		response["deleted"] = deleted
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// parseMetadata builds ingestion metadata from tool arguments
func parseMetadata(args map[string]interface{}, now time.Time) (types.Metadata, error) {
	recordType := types.RecordType(getStringDefault(args, "type", ""))
	if recordType != types.TypeWebsite && recordType != types.TypeContract {
		return types.Metadata{}, newMCPError(ErrorCodeInvalidParams, "type must be website or contract", map[string]interface{}{
			"param": "type",
			"value": string(recordType),
		})
	}

	meta := types.Metadata{
		Type:            recordType,
		Timestamp:       now,
		Timeframe:       types.Timeframe(getStringDefault(args, "timeframe", "")),
		SiteID:          getStringDefault(args, "site_id", ""),
		Domain:          getStringDefault(args, "domain", ""),
		ContractID:      getStringDefault(args, "contract_id", ""),
		ContractAddress: getStringDefault(args, "contract_address", ""),
		Blockchain:      getStringDefault(args, "blockchain", ""),
	}

	if raw := getStringDefault(args, "timestamp", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.Metadata{}, invalidTime("timestamp", err)
		}
		meta.Timestamp = t
	}
	return meta, nil
}

// parseFilter builds a search filter from the filters argument
func parseFilter(raw map[string]interface{}) (*types.Filter, error) {
	f := &types.Filter{
		Type:         types.RecordType(getStringDefault(raw, "type", "")),
		SiteIDs:      getStringSlice(raw, "site_ids"),
		ContractIDs:  getStringSlice(raw, "contract_ids"),
		DataCategory: types.DataCategory(getStringDefault(raw, "data_category", "")),
	}

	for _, bound := range []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := getStringDefault(raw, bound.key, "")
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, invalidTime("filters."+bound.key, err)
		}
		*bound.dst = t
	}
	return f, nil
}

func formatResult(rank int, r types.SimilarityResult) map[string]interface{} {
	m := r.Metadata
	item := map[string]interface{}{
		"rank":          rank,
		"id":            r.ID,
		"similarity":    r.Similarity,
		"text":          r.Text,
		"type":          string(m.Type),
		"data_category": string(m.DataCategory),
		"timeframe":     string(m.Timeframe),
		"timestamp":     m.Timestamp.Format(time.RFC3339),
		"metrics":       m.Metrics,
		"source":        m.Source,
	}
	if m.Type == types.TypeWebsite {
		item["site_id"] = m.SiteID
		item["domain"] = m.Domain
	} else {
		item["contract_id"] = m.ContractID
		item["contract_address"] = m.ContractAddress
		item["blockchain"] = m.Blockchain
	}
	return item
}

// toolError maps pipeline errors onto MCP error codes
func toolError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	var validation *types.ValidationError
	switch {
	case errors.Is(err, types.ErrTextTooShort):
		return newMCPError(ErrorCodeEmptyQuery, "query is too short to embed", data)
	case errors.Is(err, types.ErrMissingCredentials):
		return newMCPError(ErrorCodeEmbeddingUnavailable, "embedding provider is not configured", data)
	case errors.Is(err, retrieval.ErrPurgeInProgress):
		return newMCPError(ErrorCodePurgeInProgress, "another purge is already running", data)
	case errors.As(err, &validation):
		data["param"] = validation.Field
		data["reason"] = validation.Reason
		return newMCPError(ErrorCodeInvalidParams, message, data)
	}
	return newMCPError(ErrorCodeInternalError, message, data)
}

func invalidTime(param string, err error) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid time, expected RFC 3339", map[string]interface{}{
		"param":  param,
		"reason": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
