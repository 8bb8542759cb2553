package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Tick is the duration of one world simulation step.
const Tick = 50 * time.Millisecond

// Ticks converts a tick count to a duration.
func Ticks(n int64) time.Duration { return time.Duration(n) * Tick }

// Location is a point in a named world.
type Location struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%.0f, %.0f, %.0f)", l.World, l.X, l.Y, l.Z)
}

// Region is the spatial partition a location falls in.
type Region struct {
	World string
	RX    int64
	RZ    int64
}

// RegionOf returns the partition owning l for square regions of size blocks.
func RegionOf(l Location, size int) Region {
	if size <= 0 {
		size = 512
	}
	s := float64(size)
	return Region{
		World: l.World,
		RX:    int64(math.Floor(l.X / s)),
		RZ:    int64(math.Floor(l.Z / s)),
	}
}

// Key is a stable string form used for hashing.
func (r Region) Key() string {
	return fmt.Sprintf("%s:%d:%d", r.World, r.RX, r.RZ)
}

// HolderView is an immutable copy of a holder record.
type HolderView struct {
	ActorID          uuid.UUID `json:"actorId"`
	RelicID          uuid.UUID `json:"relicId"`
	TimerEnd         time.Time `json:"timerEnd"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	LastChance       bool      `json:"lastChance"`
	LastWhisper      time.Time `json:"lastWhisper,omitempty"`
	LastKill         uuid.UUID `json:"lastKill"`
	TotalHoldMinutes int64     `json:"totalHoldMinutes"`
	SessionStart     time.Time `json:"sessionStart,omitempty"`
	Generation       uint64    `json:"generation"`
	Online           bool      `json:"online"`
}

// GroundView is an immutable copy of a ground record. TimerEnd is zero when the
// relic never despawns on its own.
type GroundView struct {
	RelicID          uuid.UUID `json:"relicId"`
	Location         Location  `json:"location"`
	TimerEnd         time.Time `json:"timerEnd,omitempty"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	OwnerID          uuid.UUID `json:"ownerId"`
}

// HasTimer reports whether the ground relic has a despawn deadline.
func (g GroundView) HasTimer() bool { return !g.TimerEnd.IsZero() }

// Snapshot is the persisted form of the store.
type Snapshot struct {
	Holders        []HolderView
	Ground         []GroundView
	PendingRemoval []uuid.UUID
}

// Empty reports whether the snapshot carries no data.
func (s Snapshot) Empty() bool {
	return len(s.Holders) == 0 && len(s.Ground) == 0 && len(s.PendingRemoval) == 0
}

// Counts reports relic totals against the configured maximum.
type Counts struct {
	Total     int `json:"total"`
	Held      int `json:"held"`
	Ground    int `json:"ground"`
	Max       int `json:"max"`
	Craftable int `json:"craftable"`
}

// RelicState names the lifecycle state of a relic id.
type RelicState string

const (
	StateHeld      RelicState = "held"
	StateGround    RelicState = "ground"
	StateDestroyed RelicState = "destroyed"
)

// RelicView answers a lookup by relic id.
type RelicView struct {
	RelicID uuid.UUID   `json:"relicId"`
	State   RelicState  `json:"state"`
	Holder  *HolderView `json:"holder,omitempty"`
	Ground  *GroundView `json:"ground,omitempty"`
}

// RemainingSeconds clamps end-now to whole seconds, never negative.
func RemainingSeconds(end, now time.Time) int64 {
	if end.IsZero() || !end.After(now) {
		return 0
	}
	return int64(end.Sub(now) / time.Second)
}
