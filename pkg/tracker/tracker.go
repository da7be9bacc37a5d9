package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sa-platform/sa/pkg/models"
)

// Tracker records and queries generation history.
type Tracker interface {
	// Record stores one terminal generation outcome.
	Record(ctx context.Context, rec models.GenerationRecord) error
	// Summary returns counts grouped by kind and outcome, optionally filtered by kind.
	Summary(ctx context.Context, kind models.Kind) ([]models.HistorySummary, error)
	// Recent returns the newest records first, at most limit of them.
	Recent(ctx context.Context, limit int) ([]models.GenerationRecord, error)
	// Daily returns per-day generation counts since a given time.
	Daily(ctx context.Context, since time.Time) ([]models.DailyCount, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS generations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	outcome TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	outputs INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generations_kind_time ON generations(kind, created_at);
`

// DefaultRecentLimit is used by Recent when limit is not positive.
const DefaultRecentLimit = 20

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create tracker dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a generation record. A zero CreatedAt is set to now.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.GenerationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO generations (kind, outcome, provider, fingerprint, prompt, outputs, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Kind), string(rec.Outcome), rec.Provider, rec.Fingerprint, rec.Prompt, rec.Outputs, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Summary returns aggregated history grouped by kind and outcome.
func (t *SQLiteTracker) Summary(ctx context.Context, kind models.Kind) ([]models.HistorySummary, error) {
	query := `SELECT kind, outcome, COUNT(*), COALESCE(SUM(outputs), 0), COALESCE(AVG(latency_ms), 0)
		 FROM generations`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` GROUP BY kind, outcome ORDER BY kind, outcome`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.HistorySummary
	for rows.Next() {
		var s models.HistorySummary
		var k, o string
		if err := rows.Scan(&k, &o, &s.Count, &s.Outputs, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Kind, s.Outcome = models.Kind(k), models.Outcome(o)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Recent returns the latest records, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.GenerationRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, kind, outcome, provider, fingerprint, prompt, outputs, latency_ms, created_at
		 FROM generations ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent generations: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var r models.GenerationRecord
		var k, o string
		if err := rows.Scan(&r.ID, &k, &o, &r.Provider, &r.Fingerprint, &r.Prompt, &r.Outputs, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		r.Kind, r.Outcome = models.Kind(k), models.Outcome(o)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Daily returns successful generations per day and kind since a given time.
// Failed attempts are not counted.
func (t *SQLiteTracker) Daily(ctx context.Context, since time.Time) ([]models.DailyCount, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10), kind, COUNT(*)
		 FROM generations WHERE created_at >= ? AND outcome != ?
		 GROUP BY 1, kind ORDER BY 1, kind`,
		since.UTC(), string(models.OutcomeFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	var counts []models.DailyCount
	for rows.Next() {
		var d models.DailyCount
		var k string
		if err := rows.Scan(&d.Day, &k, &d.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		d.Kind = models.Kind(k)
		counts = append(counts, d)
	}
	return counts, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
