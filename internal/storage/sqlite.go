package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// SQLiteStore implements VectorStore using SQLite
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	native    bool // vec_distance_cosine is callable on this connection
	now       func() time.Time
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens or creates a store at dbPath for vectors of the given dimension
func NewSQLiteStore(dbPath string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx := context.Background()
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStore{db: db, dimension: dimension, now: time.Now}
	if err := s.checkDimension(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if VectorExtensionAvailable {
		s.native = hasVectorExtension(ctx, db)
	}
	return s, nil
}

// hasVectorExtension reports whether the sqlite-vec functions are registered
// on the connection
func hasVectorExtension(ctx context.Context, db *sql.DB) bool {
	var version string
	return db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version) == nil
}

// NativeSearch reports whether Search ranks records in SQL
func (s *SQLiteStore) NativeSearch() bool {
	return s.native
}

// checkDimension records the dimension on first open and rejects a different one later
func (s *SQLiteStore) checkDimension(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_info WHERE key = 'dimension'").Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx, "INSERT INTO store_info (key, value) VALUES ('dimension', ?)", strconv.Itoa(s.dimension))
		if err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dimension: %w", err)
	}

	if stored != strconv.Itoa(s.dimension) {
		return fmt.Errorf("%w: store holds %s-dimensional vectors, configured %d", ErrDimensionMismatch, stored, s.dimension)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dimension returns the vector dimension of the store
func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// recordColumns is the column list scanned by scanRecord
const recordColumns = `id, vector, text, record_type, data_category, timeframe,
	site_id, domain, contract_id, contract_address, blockchain,
	metrics, source, chunk_timestamp, created_at`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads recordColumns plus any extra trailing columns
func scanRecord(row rowScanner, extra ...interface{}) (*types.VectorRecord, error) {
	var (
		rec          types.VectorRecord
		blob         []byte
		metrics      string
		recordType   string
		category     string
		timeframe    string
		chunkNanos   int64
		createdNanos int64
	)

	dest := []interface{}{
		&rec.ID, &blob, &rec.Text, &recordType, &category, &timeframe,
		&rec.Metadata.SiteID, &rec.Metadata.Domain, &rec.Metadata.ContractID,
		&rec.Metadata.ContractAddress, &rec.Metadata.Blockchain,
		&metrics, &rec.Metadata.Source, &chunkNanos, &createdNanos,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rec.Vector = deserializeVector(blob)
	rec.Metadata.Type = types.RecordType(recordType)
	rec.Metadata.DataCategory = types.DataCategory(category)
	rec.Metadata.Timeframe = types.Timeframe(timeframe)
	rec.Metadata.Timestamp = time.Unix(0, chunkNanos).UTC()
	rec.CreatedAt = time.Unix(0, createdNanos).UTC()
	if metrics != "" {
		if err := json.Unmarshal([]byte(metrics), &rec.Metadata.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}
	return &rec, nil
}

// InsertMany validates records and writes the valid ones in one transaction
func (s *SQLiteStore) InsertMany(ctx context.Context, records []types.NewRecord, opts InsertOptions) (*InsertResult, error) {
	valid, rejected, err := partitionRecords(records, s.dimension, opts)
	if err != nil {
		return nil, err
	}

	result := &InsertResult{
		Skipped:  len(rejected),
		Rejected: rejected,
		IDs:      make([]string, 0, len(valid)),
	}
	if len(valid) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("insert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := s.now()
	for _, i := range valid {
		id, err := s.insertRecordWithQuerier(ctx, tx, records[i], createdAt)
		if err != nil {
			return nil, storeError("insert", err)
		}
		result.IDs = append(result.IDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("insert", fmt.Errorf("failed to commit: %w", err))
	}

	result.Inserted = len(result.IDs)
	return result, nil
}

// insertRecordWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) insertRecordWithQuerier(ctx context.Context, q querier, r types.NewRecord, createdAt time.Time) (string, error) {
	metrics := r.Metadata.Metrics
	if metrics == nil {
		metrics = []string{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	id := uuid.NewString()
	query := `
		INSERT INTO vector_records (id, vector, dimension, text, record_type, data_category, timeframe,
		                            site_id, domain, contract_id, contract_address, blockchain,
		                            metrics, source, chunk_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	m := r.Metadata
	_, err = q.ExecContext(ctx, query,
		id, serializeVector(r.Vector), len(r.Vector), r.Text,
		string(m.Type), string(m.DataCategory), string(m.Timeframe),
		m.SiteID, m.Domain, m.ContractID, m.ContractAddress, m.Blockchain,
		string(metricsJSON), m.Source, m.Timestamp.UnixNano(), createdAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

// Search ranks records by cosine similarity to query
func (s *SQLiteStore) Search(ctx context.Context, query []float32, filter *types.Filter, limit int) ([]types.SimilarityResult, error) {
	if err := validateQuery(query, s.dimension); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.SimilarityResult{}, nil
	}

	var (
		results []types.SimilarityResult
		err     error
	)
	// Use SQL-side similarity when sqlite-vec is loaded
	if s.native {
		results, err = searchNative(ctx, s.querier(), query, filter, limit)
	} else {
		results, err = searchFallback(ctx, s.querier(), query, filter, limit)
	}
	if err != nil {
		return nil, storeError("search", err)
	}
	return results, nil
}

// Get returns one record by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.VectorRecord, error) {
	return s.getWithQuerier(ctx, s.querier(), id)
}

// getWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getWithQuerier(ctx context.Context, q querier, id string) (*types.VectorRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM vector_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	return rec, nil
}

// DeleteOlderThan removes records created before cutoff
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteWhere(ctx, "created_at < ?", cutoff.UnixNano())
}

// Delete removes records whose site or contract is listed, optionally
// restricted to those created before criteria.OlderThan
func (s *SQLiteStore) Delete(ctx context.Context, criteria types.DeleteCriteria) (int, error) {
	if criteria.Empty() {
		return 0, emptyCriteriaError()
	}

	var (
		ids   []string
		args  []interface{}
		conds []string
	)
	if len(criteria.SiteIDs) > 0 {
		ids = append(ids, "site_id IN ("+placeholders(len(criteria.SiteIDs))+")")
		args = appendStrings(args, criteria.SiteIDs)
	}
	if len(criteria.ContractIDs) > 0 {
		ids = append(ids, "contract_id IN ("+placeholders(len(criteria.ContractIDs))+")")
		args = appendStrings(args, criteria.ContractIDs)
	}
	if len(ids) > 0 {
		conds = append(conds, "("+strings.Join(ids, " OR ")+")")
	}
	if !criteria.OlderThan.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, criteria.OlderThan.UnixNano())
	}

	return s.deleteWhere(ctx, strings.Join(conds, " AND "), args...)
}

func (s *SQLiteStore) deleteWhere(ctx context.Context, where string, args ...interface{}) (int, error) {
	result, err := s.querier().ExecContext(ctx, `DELETE FROM vector_records WHERE `+where, args...)
	if err != nil {
		return 0, storeError("delete", fmt.Errorf("failed to delete records: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("delete", err)
	}
	return int(rowsAffected), nil
}

// Stats summarizes the store contents
func (s *SQLiteStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := newStats(BackendSQLite, s.dimension, s.native)
	q := s.querier()

	var oldest, newest sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at),
		       COUNT(DISTINCT NULLIF(site_id, '')),
		       COUNT(DISTINCT NULLIF(contract_id, ''))
		FROM vector_records
	`).Scan(&stats.Total, &oldest, &newest, &stats.Sites, &stats.Contracts)
	if err != nil {
		return nil, storeError("stats", fmt.Errorf("failed to count records: %w", err))
	}
	if oldest.Valid {
		stats.Oldest = time.Unix(0, oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.Newest = time.Unix(0, newest.Int64).UTC()
	}

	if err := countBy(ctx, q, "record_type", func(k string, n int) {
		stats.ByType[types.RecordType(k)] = n
	}); err != nil {
		return nil, storeError("stats", err)
	}
	if err := countBy(ctx, q, "data_category", func(k string, n int) {
		stats.ByCategory[types.DataCategory(k)] = n
	}); err != nil {
		return nil, storeError("stats", err)
	}

	return stats, nil
}

// countBy groups vector_records by column; column is never user input
func countBy(ctx context.Context, q querier, column string, fn func(key string, n int)) error {
	rows, err := q.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM vector_records GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to group by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}
