package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a TTL cache for catalog and search responses backed by SQLite.
// Entries are stored as raw JSON keyed by request URL.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Open opens the cache database, creating it if needed
func Open(dbPath string, ttl time.Duration) (*Cache, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Single connection avoids WAL locking issues
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS responses (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_responses_created_at ON responses(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached body for key, or false if missing or expired.
// Expired entries are removed on access.
func (c *Cache) Get(key string) ([]byte, bool) {
	var body []byte
	var createdAt int64

	err := c.db.QueryRow(
		"SELECT body, created_at FROM responses WHERE key = ?", key,
	).Scan(&body, &createdAt)
	if err != nil {
		return nil, false
	}

	if time.Since(time.Unix(createdAt, 0)) > c.ttl {
		c.db.Exec("DELETE FROM responses WHERE key = ?", key)
		return nil, false
	}

	return body, true
}

// Set stores a response body under key, replacing any previous entry
func (c *Cache) Set(key string, body []byte) error {
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO responses (key, body, created_at) VALUES (?, ?, ?)",
		key, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Purge removes all expired entries
func (c *Cache) Purge() (int64, error) {
	cutoff := time.Now().Add(-c.ttl).Unix()
	res, err := c.db.Exec("DELETE FROM responses WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (c *Cache) Close() error {
	return c.db.Close()
}
