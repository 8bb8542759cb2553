// Package persistence stores the relic state between restarts. A Backend
// reads and writes whole snapshots; the Bridge decides when to write.
package persistence

import (
	"context"
	"path/filepath"
	"time"

	"github.com/mycelian/relic-service/internal/model"
)

// Backend is a snapshot store. Save replaces everything previously saved.
type Backend interface {
	Name() string
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
	Empty(ctx context.Context) (bool, error)
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is loaded with prefix RELIC_STORAGE_.
type Config struct {
	Backend         string        `envconfig:"BACKEND" default:"sqlite"`
	DataDir         string        `envconfig:"DATA_DIR" default:"data"`
	FilePath        string        `envconfig:"FILE_PATH"`
	SQLitePath      string        `envconfig:"SQLITE_PATH"`
	PostgresDSN     string        `envconfig:"POSTGRES_DSN"`
	ConnectAttempts int           `envconfig:"CONNECT_ATTEMPTS" default:"5"`
	ConnectBackoff  time.Duration `envconfig:"CONNECT_BACKOFF" default:"500ms"`
	SaveTimeout     time.Duration `envconfig:"SAVE_TIMEOUT" default:"10s"`
}

// ResolvePaths fills file locations left empty from DataDir.
func (c Config) ResolvePaths() Config {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.FilePath == "" {
		c.FilePath = filepath.Join(c.DataDir, "relics.yml")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "relics.db")
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 1
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 500 * time.Millisecond
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 10 * time.Second
	}
	return c
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
