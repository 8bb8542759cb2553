package persistence

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MigratedSuffix is appended to a local source after its data moved to another backend.
const MigratedSuffix = ".migrated"

// Open builds the configured backend, retrying connection failures, then
// migrates data into it from the other local backend when it is empty.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Backend, error) {
	cfg = cfg.ResolvePaths()
	log = log.With().Str("component", "persistence").Logger()

	target, err := openWithRetry(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, target, sources(cfg, target.Name()), log); err != nil {
		_ = target.Close()
		return nil, err
	}
	log.Info().Str("backend", target.Name()).Msg("persistence backend ready")
	return target, nil
}

func openWithRetry(ctx context.Context, cfg Config, log zerolog.Logger) (Backend, error) {
	var backend Backend
	attempt := 0
	op := func() error {
		attempt++
		var err error
		switch cfg.Backend {
		case BackendFile:
			if err = os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
				backend = NewFile(cfg.FilePath, log)
			}
		case BackendSQLite:
			backend, err = NewSQLite(ctx, cfg.SQLitePath)
		case BackendPostgres:
			backend, err = NewPostgres(ctx, cfg.PostgresDSN)
		default:
			return backoff.Permanent(errors.Errorf("unknown storage backend %q", cfg.Backend))
		}
		if err != nil {
			log.Warn().Err(err).Str("backend", cfg.Backend).Int("attempt", attempt).Msg("backend open failed")
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.ConnectBackoff
	exp.Multiplier = 2
	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(cfg.ConnectAttempts-1))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, errors.Wrapf(err, "open %s backend", cfg.Backend)
	}
	return backend, nil
}

// Source is a local backend that can be migrated from.
type Source struct {
	Path string
	Open func(ctx context.Context) (Backend, error)
}

// sources lists the local backends other than target whose files exist.
func sources(cfg Config, target string) []Source {
	file := Source{Path: cfg.FilePath, Open: func(context.Context) (Backend, error) {
		return NewFile(cfg.FilePath, zerolog.Nop()), nil
	}}
	sqlite := Source{Path: cfg.SQLitePath, Open: func(ctx context.Context) (Backend, error) {
		return NewSQLite(ctx, cfg.SQLitePath)
	}}

	var candidates []Source
	switch target {
	case BackendFile:
		candidates = []Source{sqlite}
	case BackendSQLite:
		candidates = []Source{file}
	case BackendPostgres:
		candidates = []Source{file, sqlite}
	}
	var out []Source
	for _, s := range candidates {
		if _, err := os.Stat(s.Path); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Migrate copies the first non-empty source into target when target is
// empty. The migrated source is renamed with MigratedSuffix.
func Migrate(ctx context.Context, target Backend, srcs []Source, log zerolog.Logger) error {
	if len(srcs) == 0 {
		return nil
	}
	empty, err := target.Empty(ctx)
	if err != nil {
		return errors.Wrap(err, "check target before migration")
	}
	if !empty {
		return nil
	}

	for _, s := range srcs {
		src, err := s.Open(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", s.Path).Msg("skipping migration source")
			continue
		}
		srcEmpty, err := src.Empty(ctx)
		if err != nil || srcEmpty {
			_ = src.Close()
			continue
		}
		snap, err := src.Load(ctx)
		_ = src.Close()
		if err != nil {
			return errors.Wrapf(err, "load migration source %s", s.Path)
		}
		if err := target.Save(ctx, snap); err != nil {
			return errors.Wrapf(err, "migrate %s into %s", s.Path, target.Name())
		}
		if err := os.Rename(s.Path, s.Path+MigratedSuffix); err != nil {
			log.Error().Stack().Err(err).Str("source", s.Path).Msg("migration source not renamed")
		}
		log.Info().
			Str("from", src.Name()).
			Str("to", target.Name()).
			Int("holders", len(snap.Holders)).
			Int("ground", len(snap.Ground)).
			Int("pending", len(snap.PendingRemoval)).
			Msg("migrated relic data")
		return nil
	}
	return nil
}
