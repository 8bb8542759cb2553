package model

import "github.com/google/uuid"

// World events reported by the game server.

type DamageEvent struct {
	Victim   uuid.UUID `json:"victim"`
	Attacker uuid.UUID `json:"attacker"`
	Amount   float64   `json:"amount"`
	Location Location  `json:"location"`
}

// DeflectionEvent records a special-defense trigger on the victim caused by the attacker.
type DeflectionEvent struct {
	Victim   uuid.UUID `json:"victim"`
	Attacker uuid.UUID `json:"attacker"`
	Location Location  `json:"location"`
}

type DeathEvent struct {
	Victim uuid.UUID `json:"victim"`
	// Killer is uuid.Nil for environmental deaths.
	Killer      uuid.UUID `json:"killer"`
	Location    Location  `json:"location"`
	VictimArmor int       `json:"victimArmor"`
	Cause       string    `json:"cause,omitempty"`
}

type PickupEvent struct {
	Actor    uuid.UUID `json:"actor"`
	Relic    uuid.UUID `json:"relic"`
	Location Location  `json:"location"`
}

type JoinEvent struct {
	Actor    uuid.UUID `json:"actor"`
	Name     string    `json:"name,omitempty"`
	Location Location  `json:"location"`
}

type QuitEvent struct {
	Actor uuid.UUID `json:"actor"`
}

type MoveEvent struct {
	Actor    uuid.UUID `json:"actor"`
	Location Location  `json:"location"`
}

// VoidEvent reports a relic item falling out of world bounds.
type VoidEvent struct {
	Relic    uuid.UUID `json:"relic"`
	Location Location  `json:"location"`
}

// DespawnEvent reports that the physical item of a relic vanished.
type DespawnEvent struct {
	Relic uuid.UUID `json:"relic"`
}

type CraftEvent struct {
	Actor    uuid.UUID `json:"actor"`
	Location Location  `json:"location"`
}

// BreakEvent reports a held relic whose durability ran out.
type BreakEvent struct {
	Actor uuid.UUID `json:"actor"`
	Relic uuid.UUID `json:"relic"`
}

// Observation is one relic-typed item seen by a world scan. Relic is uuid.Nil
// when the item carries no identity tag.
type Observation struct {
	Relic     uuid.UUID `json:"relic"`
	Container string    `json:"container"`
	Location  Location  `json:"location"`
}
