package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// UsageRecord is one coach API chat call.
type UsageRecord struct {
	ID               string
	RequestID        string
	Upstream         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Status           int
	Error            string
	LatencyMs        int64
	CreatedAt        time.Time
}

// UsageFilter selects records for Fetch. Zero fields do not filter.
type UsageFilter struct {
	Upstream   string
	Since      time.Time
	FailedOnly bool
	Limit      int
}

// UsageRepository stores the coach API's usage log.
type UsageRepository interface {
	Save(ctx context.Context, rec UsageRecord) error
	Fetch(ctx context.Context, filter UsageFilter) ([]UsageRecord, error)
}

const defaultFetchLimit = 100

// SQLiteUsageRepository keeps usage records in a SQLite database.
type SQLiteUsageRepository struct {
	db *sql.DB
}

var _ UsageRepository = (*SQLiteUsageRepository)(nil)

// NewSQLiteUsageRepository opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteUsageRepository(path string) (*SQLiteUsageRepository, error) {
	if path != ":memory:" {
		path = filepath.Clean(path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteUsageRepository{db: db}
	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return repo, nil
}

func (r *SQLiteUsageRepository) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		upstream TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Save inserts rec, assigning an ID and timestamp when missing.
func (r *SQLiteUsageRepository) Save(ctx context.Context, rec UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO usage_records (id, request_id, upstream, model, prompt_tokens, completion_tokens, total_tokens, status, error, latency_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Upstream,
		rec.Model,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.Status,
		rec.Error,
		rec.LatencyMs,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

// Fetch returns matching records, newest first.
func (r *SQLiteUsageRepository) Fetch(ctx context.Context, filter UsageFilter) ([]UsageRecord, error) {
	var where []string
	var args []any

	if filter.Upstream != "" {
		where = append(where, "upstream = ?")
		args = append(args, filter.Upstream)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.FailedOnly {
		where = append(where, "status <> 200")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultFetchLimit
	}

	query := `
	SELECT id, request_id, upstream, model, prompt_tokens, completion_tokens, total_tokens, status, error, latency_ms, created_at
	FROM usage_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var createdAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Upstream,
			&rec.Model,
			&rec.PromptTokens,
			&rec.CompletionTokens,
			&rec.TotalTokens,
			&rec.Status,
			&rec.Error,
			&rec.LatencyMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteUsageRepository) Close() error {
	return r.db.Close()
}
