package persistence

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mycelian/relic-service/internal/model"
)

type fileDoc struct {
	Holders        []fileHolder `yaml:"holders,omitempty"`
	Ground         []fileGround `yaml:"ground,omitempty"`
	PendingRemoval []string     `yaml:"pending_removal,omitempty"`
}

type fileHolder struct {
	Actor            string    `yaml:"actor"`
	Relic            string    `yaml:"relic"`
	TimerEnd         time.Time `yaml:"timer_end"`
	LastChance       bool      `yaml:"last_chance,omitempty"`
	LastWhisper      time.Time `yaml:"last_whisper,omitempty"`
	LastKill         string    `yaml:"last_kill,omitempty"`
	TotalHoldMinutes int64     `yaml:"total_hold_minutes,omitempty"`
	SessionStart     time.Time `yaml:"session_start,omitempty"`
}

type fileGround struct {
	Relic    string         `yaml:"relic"`
	Location model.Location `yaml:"location"`
	TimerEnd time.Time      `yaml:"timer_end,omitempty"`
	Owner    string         `yaml:"owner,omitempty"`
}

// FileBackend keeps the snapshot in one YAML document. Writes go to a
// temporary file that is renamed over the target.
type FileBackend struct {
	path string
	log  zerolog.Logger
}

func NewFile(path string, log zerolog.Logger) *FileBackend {
	return &FileBackend{path: path, log: log.With().Str("component", "persistence.file").Logger()}
}

func (f *FileBackend) Name() string { return BackendFile }

// Path is the document location.
func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) read() (fileDoc, error) {
	var doc fileDoc
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, errors.Wrapf(err, "read %s", f.path)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, errors.Wrapf(err, "decode %s", f.path)
	}
	return doc, nil
}

// Load skips entries whose ids do not parse and logs them.
func (f *FileBackend) Load(_ context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	doc, err := f.read()
	if err != nil {
		return snap, err
	}
	for _, h := range doc.Holders {
		actor, err1 := uuid.Parse(h.Actor)
		relic, err2 := uuid.Parse(h.Relic)
		if err1 != nil || err2 != nil {
			f.log.Warn().Str("actor", h.Actor).Str("relic", h.Relic).Msg("skipping holder with invalid id")
			continue
		}
		v := model.HolderView{
			ActorID:          actor,
			RelicID:          relic,
			TimerEnd:         h.TimerEnd,
			LastChance:       h.LastChance,
			LastWhisper:      h.LastWhisper,
			TotalHoldMinutes: h.TotalHoldMinutes,
			SessionStart:     h.SessionStart,
		}
		if h.LastKill != "" {
			v.LastKill, _ = uuid.Parse(h.LastKill)
		}
		snap.Holders = append(snap.Holders, v)
	}
	for _, g := range doc.Ground {
		relic, err := uuid.Parse(g.Relic)
		if err != nil {
			f.log.Warn().Str("relic", g.Relic).Msg("skipping ground relic with invalid id")
			continue
		}
		v := model.GroundView{RelicID: relic, Location: g.Location, TimerEnd: g.TimerEnd}
		if g.Owner != "" {
			v.OwnerID, _ = uuid.Parse(g.Owner)
		}
		snap.Ground = append(snap.Ground, v)
	}
	for _, s := range doc.PendingRemoval {
		actor, err := uuid.Parse(s)
		if err != nil {
			f.log.Warn().Str("actor", s).Msg("skipping pending removal with invalid id")
			continue
		}
		snap.PendingRemoval = append(snap.PendingRemoval, actor)
	}
	return snap, nil
}

func (f *FileBackend) Save(_ context.Context, snap model.Snapshot) error {
	var doc fileDoc
	for _, h := range snap.Holders {
		fh := fileHolder{
			Actor:            h.ActorID.String(),
			Relic:            h.RelicID.String(),
			TimerEnd:         h.TimerEnd.UTC(),
			LastChance:       h.LastChance,
			LastWhisper:      h.LastWhisper.UTC(),
			TotalHoldMinutes: h.TotalHoldMinutes,
			SessionStart:     h.SessionStart.UTC(),
		}
		if h.LastKill != uuid.Nil {
			fh.LastKill = h.LastKill.String()
		}
		doc.Holders = append(doc.Holders, fh)
	}
	for _, g := range snap.Ground {
		fg := fileGround{Relic: g.RelicID.String(), Location: g.Location, TimerEnd: g.TimerEnd.UTC()}
		if g.OwnerID != uuid.Nil {
			fg.Owner = g.OwnerID.String()
		}
		doc.Ground = append(doc.Ground, fg)
	}
	for _, a := range snap.PendingRemoval {
		doc.PendingRemoval = append(doc.PendingRemoval, a.String())
	}

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "replace %s", f.path)
	}
	return nil
}

func (f *FileBackend) Empty(_ context.Context) (bool, error) {
	doc, err := f.read()
	if err != nil {
		return false, err
	}
	return len(doc.Holders) == 0 && len(doc.Ground) == 0 && len(doc.PendingRemoval) == 0, nil
}

func (f *FileBackend) Close() error { return nil }

// HealthPing checks that the data directory is still there.
func (f *FileBackend) HealthPing(_ context.Context) error {
	dir := filepath.Dir(f.path)
	st, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "stat %s", dir)
	}
	if !st.IsDir() {
		return errors.Errorf("%s is not a directory", dir)
	}
	return nil
}
