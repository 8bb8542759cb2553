package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// openSQLite opens (or creates) a SQLite database at path with WAL journaling.
func openSQLite(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps WAL checkpoints simple; the bridge serializes saves anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSQLite opens the database at path and applies the embedded schema.
func NewSQLite(ctx context.Context, path string) (Backend, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	if err := applyMigrations(ctx, db, migrationFS, "migrations/sqlite", noRebind); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return &sqlBackend{name: BackendSQLite, db: db, rebind: noRebind}, nil
}
