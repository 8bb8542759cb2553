package persistence

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mycelian/relic-service/internal/model"
)

// sqlBackend is the relational Backend shared by sqlite and postgres. Queries
// are written with ? placeholders and rebound per driver.
type sqlBackend struct {
	name   string
	db     *sql.DB
	rebind func(string) string
}

func (s *sqlBackend) Name() string { return s.name }

// DB exposes the pool for diagnostics.
func (s *sqlBackend) DB() *sql.DB { return s.db }

func (s *sqlBackend) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlBackend) Close() error { return s.db.Close() }

func (s *sqlBackend) Empty(ctx context.Context) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
        SELECT (SELECT COUNT(*) FROM relic_holders)
             + (SELECT COUNT(*) FROM ground_relics)
             + (SELECT COUNT(*) FROM pending_removal)
    `).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "%s: count rows", s.name)
	}
	return n == 0, nil
}

func (s *sqlBackend) Save(ctx context.Context, snap model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "%s: begin", s.name)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"pending_removal", "ground_relics", "relic_holders"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "%s: clear %s", s.name, table)
		}
	}

	for _, h := range snap.Holders {
		lastKill := ""
		if h.LastKill != uuid.Nil {
			lastKill = h.LastKill.String()
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
            INSERT INTO relic_holders
                (actor_id, relic_id, timer_end, last_chance, last_whisper, last_kill, total_hold_minutes, session_start)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `), h.ActorID.String(), h.RelicID.String(), toMillis(h.TimerEnd), h.LastChance,
			toMillis(h.LastWhisper), lastKill, h.TotalHoldMinutes, toMillis(h.SessionStart)); err != nil {
			return errors.Wrapf(err, "%s: insert holder %s", s.name, h.ActorID)
		}
	}
	for _, g := range snap.Ground {
		owner := ""
		if g.OwnerID != uuid.Nil {
			owner = g.OwnerID.String()
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
            INSERT INTO ground_relics (relic_id, world, x, y, z, timer_end, owner_id)
            VALUES (?, ?, ?, ?, ?, ?, ?)
        `), g.RelicID.String(), g.Location.World, g.Location.X, g.Location.Y, g.Location.Z,
			toMillis(g.TimerEnd), owner); err != nil {
			return errors.Wrapf(err, "%s: insert ground relic %s", s.name, g.RelicID)
		}
	}
	for _, actor := range snap.PendingRemoval {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO pending_removal (actor_id) VALUES (?)`), actor.String()); err != nil {
			return errors.Wrapf(err, "%s: insert pending removal %s", s.name, actor)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "%s: commit", s.name)
	}
	return nil
}

func (s *sqlBackend) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot

	rows, err := s.db.QueryContext(ctx, `
        SELECT actor_id, relic_id, timer_end, last_chance, last_whisper, last_kill, total_hold_minutes, session_start
        FROM relic_holders ORDER BY actor_id
    `)
	if err != nil {
		return snap, errors.Wrapf(err, "%s: query holders", s.name)
	}
	for rows.Next() {
		var (
			actor, relic, lastKill              string
			timerEnd, lastWhisper, sessionStart int64
			lastChance                          bool
			v                                   model.HolderView
		)
		if err := rows.Scan(&actor, &relic, &timerEnd, &lastChance, &lastWhisper, &lastKill, &v.TotalHoldMinutes, &sessionStart); err != nil {
			_ = rows.Close()
			return snap, errors.Wrapf(err, "%s: scan holder", s.name)
		}
		if v.ActorID, err = uuid.Parse(actor); err != nil {
			continue
		}
		if v.RelicID, err = uuid.Parse(relic); err != nil {
			continue
		}
		if lastKill != "" {
			v.LastKill, _ = uuid.Parse(lastKill)
		}
		v.TimerEnd = fromMillis(timerEnd)
		v.LastChance = lastChance
		v.LastWhisper = fromMillis(lastWhisper)
		v.SessionStart = fromMillis(sessionStart)
		snap.Holders = append(snap.Holders, v)
	}
	if err := closeRows(rows); err != nil {
		return snap, errors.Wrapf(err, "%s: holders", s.name)
	}

	rows, err = s.db.QueryContext(ctx, `
        SELECT relic_id, world, x, y, z, timer_end, owner_id FROM ground_relics ORDER BY relic_id
    `)
	if err != nil {
		return snap, errors.Wrapf(err, "%s: query ground relics", s.name)
	}
	for rows.Next() {
		var (
			relic, owner string
			timerEnd     int64
			v            model.GroundView
		)
		if err := rows.Scan(&relic, &v.Location.World, &v.Location.X, &v.Location.Y, &v.Location.Z, &timerEnd, &owner); err != nil {
			_ = rows.Close()
			return snap, errors.Wrapf(err, "%s: scan ground relic", s.name)
		}
		if v.RelicID, err = uuid.Parse(relic); err != nil {
			continue
		}
		if owner != "" {
			v.OwnerID, _ = uuid.Parse(owner)
		}
		v.TimerEnd = fromMillis(timerEnd)
		snap.Ground = append(snap.Ground, v)
	}
	if err := closeRows(rows); err != nil {
		return snap, errors.Wrapf(err, "%s: ground relics", s.name)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT actor_id FROM pending_removal ORDER BY actor_id`)
	if err != nil {
		return snap, errors.Wrapf(err, "%s: query pending removal", s.name)
	}
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			_ = rows.Close()
			return snap, errors.Wrapf(err, "%s: scan pending removal", s.name)
		}
		if id, err := uuid.Parse(actor); err == nil {
			snap.PendingRemoval = append(snap.PendingRemoval, id)
		}
	}
	if err := closeRows(rows); err != nil {
		return snap, errors.Wrapf(err, "%s: pending removal", s.name)
	}
	return snap, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
