// Package db provides SQLite database access for berth.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/berth-sh/berth/internal/logging"
)

// Options configures the database connection.
type Options struct {
	// MaxConnections is the maximum number of open connections.
	MaxConnections int

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{
		MaxConnections: 10,
		BusyTimeoutMs:  5000,
	}
}

// DB wraps a SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if necessary) the database at the given path.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultOptions().MaxConnections
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = DefaultOptions().BusyTimeoutMs
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, opts.BusyTimeoutMs,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(opts.MaxConnections)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{
		DB:     conn,
		path:   path,
		logger: logging.Component("db"),
	}

	if err := db.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// OpenInMemory opens an in-memory database, used in tests.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// A single connection keeps every query on the same in-memory
	// database.
	conn.SetMaxOpenConns(1)

	return &DB{
		DB:     conn,
		path:   ":memory:",
		logger: logging.Component("db"),
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Transaction runs fn inside a transaction, committing on success and
// rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// schemaStatements defines the full schema. Statements are idempotent
// so Migrate can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		short_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL UNIQUE,
		binary_path TEXT NOT NULL DEFAULT '',
		repo_dir TEXT NOT NULL,
		api_address TEXT NOT NULL DEFAULT '',
		extra_args_json TEXT,
		state TEXT NOT NULL DEFAULT 'stopped',
		pid INTEGER NOT NULL DEFAULT 0,
		log_path TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		stopped_at TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_state ON nodes(state)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload_json TEXT,
		metadata_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id)`,
}

// isUniqueConstraintError reports whether err is a SQLite unique
// constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "constraint failed")
}
