package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sa-platform/sa/pkg/models"
)

// Store is a namespaced fingerprint cache backed by SQLite. Several
// processes may share one database file.
type Store struct {
	db        *sql.DB
	namespace string
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
);
`

// New opens dbPath and scopes every operation to namespace.
func New(dbPath, namespace string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db, namespace: namespace}, nil
}

// Get retrieves a cached value. A missing or undecodable row is a miss.
func (s *Store) Get(ctx context.Context, key string) (models.CacheValue, bool) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&raw)
	if err != nil {
		return models.CacheValue{}, false
	}

	var v models.CacheValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return models.CacheValue{}, false
	}
	return v, true
}

// Put stores a value, replacing any previous one.
func (s *Store) Put(ctx context.Context, key string, value models.CacheValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (namespace, key, value, created_at)
		 VALUES (?, ?, ?, ?)`,
		s.namespace, key, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Clear removes every entry in the namespace.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return int(n), nil
}

// Size returns the number of entries in the namespace.
func (s *Store) Size(ctx context.Context) int {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE namespace = ?`, s.namespace,
	).Scan(&count)
	if err != nil {
		return 0
	}
	return count
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
