package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"log/slog"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB for connection management. Every call runs under a
// bounded timeout so a hung store surfaces as an error instead of hanging
// the gates that depend on it.
type DB struct {
	conn    *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

// DefaultTimeout bounds store calls when the config does not say otherwise.
const DefaultTimeout = 5 * time.Second

// New creates a new DB connection.
func New(ctx context.Context, dsn string, timeout time.Duration, logger *slog.Logger) (*DB, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &DB{conn: conn, timeout: timeout, logger: logger}, nil
}

// Close closes the DB connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Row defers releasing its timeout until Scan so the query result stays
// readable after the call returns.
type Row struct {
	row    *sql.Row
	cancel context.CancelFunc
}

func (r *Row) Scan(dest ...any) error {
	defer r.cancel()
	return r.row.Scan(dest...)
}

// Rows keeps its timeout alive until Close.
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *Rows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}

// Exec executes a query.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryRow executes a query that is expected to return at most one row.
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	return &Row{row: db.conn.QueryRowContext(ctx, query, args...), cancel: cancel}
}

// QueryRows executes a query returning multiple rows.
func (db *DB) QueryRows(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, cancel: cancel}, nil
}

// GetConn returns the underlying sql.DB.
func (db *DB) GetConn() *sql.DB {
	return db.conn
}
