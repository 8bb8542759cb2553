// Package world tracks what the service knows about the game world: which
// actors are online and where, and where a relic may be safely placed. It
// sends commands back to the game through a Publisher.
package world

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// Config is loaded with prefix RELIC_WORLD_.
type Config struct {
	// Spawns lists safe locations per world as world:x:y:z, comma separated.
	Spawns       string  `envconfig:"SPAWNS" default:"overworld:0:64:0"`
	DefaultWorld string  `envconfig:"DEFAULT_WORLD" default:"overworld"`
	MinHeight    float64 `envconfig:"MIN_HEIGHT" default:"-64"`
}

// ParseSpawns decodes Config.Spawns.
func ParseSpawns(s string) (map[string]model.Location, error) {
	out := make(map[string]model.Location)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("spawn %q: want world:x:y:z", part)
		}
		var xyz [3]float64
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("spawn %q: %w", part, err)
			}
			xyz[i] = v
		}
		out[fields[0]] = model.Location{World: fields[0], X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return out, nil
}

// Publisher delivers commands to the game server.
type Publisher interface {
	Publish(cmd model.Command)
}

type presence struct {
	name     string
	location model.Location
}

type World struct {
	cfg      Config
	spawns   map[string]model.Location
	online   *state.Map[uuid.UUID, presence]
	outbound Publisher
	log      zerolog.Logger
}

func New(cfg Config, out Publisher, log zerolog.Logger) (*World, error) {
	spawns, err := ParseSpawns(cfg.Spawns)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultWorld == "" {
		cfg.DefaultWorld = "overworld"
	}
	return &World{
		cfg:      cfg,
		spawns:   spawns,
		online:   state.NewMap[uuid.UUID, presence](0, state.HashUUID),
		outbound: out,
		log:      log.With().Str("component", "world").Logger(),
	}, nil
}

func (w *World) Join(actor uuid.UUID, name string, loc model.Location) {
	if name == "" {
		name = actor.String()
	}
	w.online.Store(actor, presence{name: name, location: loc})
}

func (w *World) Quit(actor uuid.UUID) { w.online.Delete(actor) }

// Move updates an online actor's location; unknown actors are ignored.
func (w *World) Move(actor uuid.UUID, loc model.Location) {
	w.online.Update(actor, func(p presence, ok bool) (presence, bool) {
		if ok {
			p.location = loc
		}
		return p, ok
	})
}

func (w *World) Online(actor uuid.UUID) bool {
	_, ok := w.online.Load(actor)
	return ok
}

// LocationOf satisfies scheduler.ActorLocator.
func (w *World) LocationOf(actor uuid.UUID) (model.Location, bool) {
	p, ok := w.online.Load(actor)
	return p.location, ok
}

// Name returns the display name of an online actor, or the id.
func (w *World) Name(actor uuid.UUID) string {
	if p, ok := w.online.Load(actor); ok {
		return p.name
	}
	return actor.String()
}

// OnlineCount is the number of actors present.
func (w *World) OnlineCount() int { return w.online.Len() }

// SafeLocation returns the spawn of world, falling back to the default
// world's spawn, raised to at least MinHeight+2.
func (w *World) SafeLocation(world string) model.Location {
	loc, ok := w.spawns[world]
	if !ok {
		loc, ok = w.spawns[w.cfg.DefaultWorld]
	}
	if !ok {
		loc = model.Location{World: w.cfg.DefaultWorld}
	}
	if floor := w.cfg.MinHeight + 2; loc.Y < floor {
		loc.Y = floor
	}
	return loc
}

// Dispatch forwards cmd to the game server.
func (w *World) Dispatch(cmd model.Command) {
	if w.outbound == nil {
		return
	}
	w.log.Debug().Str("kind", string(cmd.Kind)).Str("actor", cmd.Actor.String()).Msg("dispatch")
	w.outbound.Publish(cmd)
}
