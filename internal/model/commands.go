package model

import "github.com/google/uuid"

// CommandKind names an instruction sent back to the game server.
type CommandKind string

const (
	// CmdGiveRelic puts a tagged relic item into the actor's inventory.
	CmdGiveRelic CommandKind = "give_relic"
	// CmdStripRelic removes a relic item from the actor. A nil Relic strips
	// every relic item the actor carries that is no longer tracked.
	CmdStripRelic CommandKind = "strip_relic"
	// CmdDropRelic spawns the relic item at Location.
	CmdDropRelic CommandKind = "drop_relic"
	// CmdPurgeRelic removes every dropped item entity of the relic.
	CmdPurgeRelic CommandKind = "purge_relic"
	CmdAura       CommandKind = "aura"
	CmdHeartbeat  CommandKind = "heartbeat"
	CmdMessage    CommandKind = "message"
	CmdAnnounce   CommandKind = "announce"
)

type Command struct {
	Kind      CommandKind `json:"kind"`
	Actor     uuid.UUID   `json:"actor,omitempty"`
	Relic     uuid.UUID   `json:"relic,omitempty"`
	Location  *Location   `json:"location,omitempty"`
	Text      string      `json:"text,omitempty"`
	Intensity string      `json:"intensity,omitempty"`
	Pitch     float64     `json:"pitch,omitempty"`
}
