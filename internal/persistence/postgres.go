package persistence

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// openPostgres opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgres connects to dsn and applies the embedded schema.
func NewPostgres(ctx context.Context, dsn string) (Backend, error) {
	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := applyMigrations(ctx, db, migrationFS, "migrations/postgres", dollarRebind); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate postgres")
	}
	return &sqlBackend{name: BackendPostgres, db: db, rebind: dollarRebind}, nil
}
