// Package db provides structured access and database migrations for the SQLite report store.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"tracecollapse/internal/report"
)

// DB wraps the SQLite database connection
type DB struct {
	*sqlx.DB
	path string
}

// Run is one stored report.
type Run struct {
	ID           string    `db:"id" json:"id"`
	Source       string    `db:"source" json:"source"`
	TotalTraces  int       `db:"total_traces" json:"total_traces"`
	NodeCount    int       `db:"node_count" json:"node_count"`
	FailureCount int       `db:"failure_count" json:"failure_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StoredRow is one report row as persisted. Percentile columns are NULL
// when the report was built without that percentile.
type StoredRow struct {
	RunID     string          `db:"run_id"`
	Position  int             `db:"position"`
	Name      string          `db:"name"`
	Depth     int             `db:"depth"`
	SpanCount int             `db:"span_count"`
	Fraction  float64         `db:"fraction"`
	Mean      float64         `db:"mean"`
	StdDev    float64         `db:"stddev"`
	Min       float64         `db:"min"`
	Max       float64         `db:"max"`
	T50       sql.NullFloat64 `db:"t50"`
	T75       sql.NullFloat64 `db:"t75"`
	T90       sql.NullFloat64 `db:"t90"`
	T99       sql.NullFloat64 `db:"t99"`
	Histogram string          `db:"histogram"`
}

// Buckets decodes the stored histogram.
func (r StoredRow) Buckets() ([]int, error) {
	var buckets []int
	if err := json.Unmarshal([]byte(r.Histogram), &buckets); err != nil {
		return nil, fmt.Errorf("invalid histogram for %s: %w", r.Name, err)
	}
	return buckets, nil
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:   db,
		path: dbPath,
	}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			total_traces INTEGER NOT NULL,
			node_count INTEGER NOT NULL,
			failure_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS report_rows (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			depth INTEGER NOT NULL,
			span_count INTEGER NOT NULL,
			fraction REAL NOT NULL,
			mean REAL NOT NULL,
			stddev REAL NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			t50 REAL,
			t75 REAL,
			t90 REAL,
			t99 REAL,
			histogram TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES report_runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS report_root_uris (
			run_id TEXT NOT NULL,
			uri TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, uri),
			FOREIGN KEY (run_id) REFERENCES report_runs(id)
		)`,
		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_report_runs_created ON report_runs(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveReport stores r in a single transaction and returns the new run ID.
func (db *DB) SaveReport(ctx context.Context, source string, r *report.Report) (string, error) {
	runID := uuid.New().String()
	createdAt := r.GeneratedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO report_runs(id, source, total_traces, node_count, failure_count, created_at) VALUES(?, ?, ?, ?, ?, ?)",
		runID, source, r.TotalTraces, r.NodeCount, r.FailureCount(), createdAt.UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	insertRow, err := tx.PreparexContext(ctx, `INSERT INTO report_rows(
		run_id, position, name, depth, span_count, fraction, mean, stddev, min, max, t50, t75, t90, t99, histogram
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer insertRow.Close()

	for i, row := range r.Rows {
		histogram, err := json.Marshal(row.Histogram)
		if err != nil {
			return "", fmt.Errorf("failed to encode histogram: %w", err)
		}
		d := row.Summary.Description
		if _, err := insertRow.ExecContext(ctx,
			runID, i, row.Name, row.Depth, row.SpanCount, row.PerTrace,
			d.Mean, d.StdDev, d.Min, d.Max,
			percentileColumn(row, 50), percentileColumn(row, 75), percentileColumn(row, 90), percentileColumn(row, 99),
			string(histogram),
		); err != nil {
			return "", fmt.Errorf("failed to insert row %s: %w", row.Name, err)
		}
	}

	for _, u := range r.RootURIs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO report_root_uris(run_id, uri, count) VALUES(?, ?, ?)",
			runID, u.URI, u.Count,
		); err != nil {
			return "", fmt.Errorf("failed to insert root uri: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit report: %w", err)
	}

	return runID, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT id, source, total_traces, node_count, failure_count, created_at FROM report_runs ORDER BY created_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	runs := []Run{}
	if err := db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// LoadRows returns the rows of a run in report order.
func (db *DB) LoadRows(ctx context.Context, runID string) ([]StoredRow, error) {
	rows := []StoredRow{}
	if err := db.SelectContext(ctx, &rows, "SELECT * FROM report_rows WHERE run_id = ? ORDER BY position", runID); err != nil {
		return nil, fmt.Errorf("failed to load rows for %s: %w", runID, err)
	}
	return rows, nil
}

// LoadRootURIs returns the URI counts of a run, most frequent first.
func (db *DB) LoadRootURIs(ctx context.Context, runID string) ([]report.URICount, error) {
	uris := []report.URICount{}
	if err := db.SelectContext(ctx, &uris, "SELECT uri, count FROM report_root_uris WHERE run_id = ? ORDER BY count DESC, uri", runID); err != nil {
		return nil, fmt.Errorf("failed to load root uris for %s: %w", runID, err)
	}
	return uris, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func percentileColumn(row report.Row, p float64) sql.NullFloat64 {
	v, ok := row.Summary.Percentile(p)
	return sql.NullFloat64{Float64: v, Valid: ok}
}
