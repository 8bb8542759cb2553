// Package eventlog writes one JSON line per relic lifecycle event to a daily
// file, separate from the service log.
package eventlog

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
)

// Entry is one lifecycle event.
type Entry struct {
	Event     string
	Actor     uuid.UUID
	ActorName string
	Relic     uuid.UUID
	Location  *model.Location
	Container string
	Outcome   string
	Reason    string
	TimerEnd  time.Time
	TimeLeft  time.Duration
	Context   map[string]any
}

type Logger struct {
	log    zerolog.Logger
	closer io.Closer
}

// Open logs to daily files under dir. An empty dir disables the log.
func Open(dir string, now func() time.Time) (*Logger, error) {
	if dir == "" {
		return &Logger{log: zerolog.Nop()}, nil
	}
	if now == nil {
		now = time.Now
	}
	f, err := newDailyFile(dir, now)
	if err != nil {
		return nil, err
	}
	return &Logger{log: newLogger(f, now), closer: f}, nil
}

// New logs to w; tests use a buffer.
func New(w io.Writer, now func() time.Time) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{log: newLogger(w, now)}
}

func newLogger(w io.Writer, now func() time.Time) zerolog.Logger {
	return zerolog.New(w).With().Logger().Hook(timeHook{now: now})
}

type timeHook struct{ now func() time.Time }

func (h timeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str("timestamp", h.now().UTC().Format(time.RFC3339Nano))
}

// Record writes e. It never fails; a broken file only loses the line.
func (l *Logger) Record(e Entry) {
	ev := l.log.Log().Str("event", e.Event)
	if e.Actor != uuid.Nil {
		ev = ev.Str("actor", e.Actor.String())
	}
	if e.ActorName != "" {
		ev = ev.Str("actor_name", e.ActorName)
	}
	if e.Relic != uuid.Nil {
		ev = ev.Str("relic", e.Relic.String())
	}
	if e.Location != nil {
		ev = ev.Dict("location", zerolog.Dict().
			Str("world", e.Location.World).
			Float64("x", e.Location.X).
			Float64("y", e.Location.Y).
			Float64("z", e.Location.Z))
	}
	if e.Container != "" {
		ev = ev.Str("container", e.Container)
	}
	if e.Outcome != "" {
		ev = ev.Str("outcome", e.Outcome)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if !e.TimerEnd.IsZero() {
		ev = ev.Time("timer_end", e.TimerEnd)
	}
	if e.TimeLeft > 0 {
		ev = ev.Float64("time_left", e.TimeLeft.Seconds())
	}
	if len(e.Context) > 0 {
		ev = ev.Interface("context", e.Context)
	}
	ev.Send()
}

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
