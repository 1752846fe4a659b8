package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteKV persists the aggregate in a single versioned table
type SQLiteKV struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store under statePath
func Open(statePath string) (*SQLiteKV, error) {
	dbPath := filepath.Join(statePath, "system", "diner.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteKV{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file location
func (s *SQLiteKV) Path() string { return s.path }

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

func (s *SQLiteKV) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var value []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM kv WHERE key = ?`, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return value, version, nil
}

func (s *SQLiteKV) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error) {
	now := time.Now().UTC()

	var res sql.Result
	var err error
	if version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?)`,
			key, value, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET value = ?, version = version + 1, updated_at = ? WHERE key = ? AND version = ?`,
			value, now, key, version)
	}
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteKV) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
