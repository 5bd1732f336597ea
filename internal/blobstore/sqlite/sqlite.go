// Package sqlite keeps documents in a single SQLite table.
//
// It is the embedded alternative to the network object store: one row per
// document key, the JSON body stored as-is. modernc.org/sqlite is a pure Go
// driver, so the binary still cross-compiles without a C toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore"
)

var _ blobstore.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/microrager.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database, single connection only
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would see its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets GET requests read while a POST or PATCH is writing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate is idempotent: CREATE TABLE IF NOT EXISTS is safe on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Get returns the stored body, or NotFound when no row has this key.
func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE key = ?`,
		key,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(key)
		}
		return nil, apperror.Store(fmt.Sprintf("sqlite: reading %s", key), err)
	}
	return body, nil
}

// Put replaces the whole document. There is no version check: the last
// writer wins, exactly like the object store backends.
func (db *DB) Put(ctx context.Context, key string, data []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO documents (key, body, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key,
		data,
		time.Now().UTC(),
	)
	if err != nil {
		return apperror.Store(fmt.Sprintf("sqlite: writing %s", key), err)
	}
	return nil
}
