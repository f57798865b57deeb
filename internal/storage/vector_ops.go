package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/similarity"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// searchNative uses the sqlite-vec extension to rank records in SQL
func searchNative(ctx context.Context, q querier, query []float32, filter *types.Filter, limit int) ([]types.SimilarityResult, error) {
	queryBlob := serializeVector(query)

	// vec_distance_cosine returns distance (lower is better); convert to similarity
	sqlQuery := `
		SELECT ` + recordColumns + `,
			1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM vector_records
		WHERE dimension = ?
	`
	args := []interface{}{queryBlob, len(query)}

	sqlQuery, args = applyFilters(sqlQuery, args, filter)

	if threshold := filter.Threshold(); !math.IsInf(threshold, -1) {
		sqlQuery += " AND (1.0 - vec_distance_cosine(vector, ?)) >= ?"
		args = append(args, queryBlob, threshold)
	}

	// Ties come back in whatever order SQLite produces; only the fallback
	// path guarantees insertion order for equal scores
	sqlQuery += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SimilarityResult, 0, limit)
	for rows.Next() {
		var score float64
		rec, err := scanRecord(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, toResult(rec, score))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// searchFallback loads filtered candidates in insertion order and ranks them in Go
func searchFallback(ctx context.Context, q querier, query []float32, filter *types.Filter, limit int) ([]types.SimilarityResult, error) {
	sqlQuery := `SELECT ` + recordColumns + ` FROM vector_records WHERE dimension = ?`
	args := []interface{}{len(query)}

	sqlQuery, args = applyFilters(sqlQuery, args, filter)
	sqlQuery += " ORDER BY seq ASC"

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]*types.VectorRecord, 0, 256)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankRecords(query, candidates, filter.Threshold(), limit), nil
}

// rankRecords scores candidates with similarity.TopK and builds results
func rankRecords(query []float32, candidates []*types.VectorRecord, threshold float64, limit int) []types.SimilarityResult {
	vectors := make([][]float32, len(candidates))
	for i, c := range candidates {
		vectors[i] = c.Vector
	}

	matches := similarity.TopK(query, vectors, limit, threshold)
	results := make([]types.SimilarityResult, len(matches))
	for i, m := range matches {
		results[i] = toResult(candidates[m.Index], m.Similarity)
	}
	return results
}

func toResult(rec *types.VectorRecord, score float64) types.SimilarityResult {
	return types.SimilarityResult{
		ID:         rec.ID,
		Similarity: score,
		Text:       rec.Text,
		Metadata:   rec.Metadata,
		CreatedAt:  rec.CreatedAt,
	}
}

// applyFilters adds WHERE clause predicates for the filter's metadata constraints
func applyFilters(query string, args []interface{}, filter *types.Filter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}

	if filter.Type != "" {
		query += " AND record_type = ?"
		args = append(args, string(filter.Type))
	}

	if len(filter.SiteIDs) > 0 {
		query += " AND site_id IN (" + placeholders(len(filter.SiteIDs)) + ")"
		args = appendStrings(args, filter.SiteIDs)
	}

	if len(filter.ContractIDs) > 0 {
		query += " AND contract_id IN (" + placeholders(len(filter.ContractIDs)) + ")"
		args = appendStrings(args, filter.ContractIDs)
	}

	if !filter.From.IsZero() {
		query += " AND chunk_timestamp >= ?"
		args = append(args, filter.From.UnixNano())
	}

	if !filter.To.IsZero() {
		query += " AND chunk_timestamp <= ?"
		args = append(args, filter.To.UnixNano())
	}

	if filter.DataCategory != "" {
		query += " AND data_category = ?"
		args = append(args, string(filter.DataCategory))
	}

	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []interface{}, values []string) []interface{} {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
