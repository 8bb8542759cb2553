package lifecycle

import (
	"fmt"
	"time"
)

// Config holds the relic rules, loaded with prefix RELIC_RULES_.
type Config struct {
	MaxRelics      int           `envconfig:"MAX_RELICS" default:"3"`
	Hunger         time.Duration `envconfig:"HUNGER" default:"24h"`
	DeathDropTimer time.Duration `envconfig:"DEATH_DROP_TIMER" default:"300s"`
	VoidTimer      time.Duration `envconfig:"VOID_TIMER" default:"300s"`
	AbandonGrace   time.Duration `envconfig:"ABANDON_GRACE" default:"3s"`

	CraftingEnabled  bool          `envconfig:"CRAFTING_ENABLED" default:"true"`
	CraftCooldown    time.Duration `envconfig:"CRAFT_COOLDOWN" default:"3s"`
	MaxPerActor      int           `envconfig:"MAX_PER_ACTOR" default:"1"`
	BlockDropOnDeath bool          `envconfig:"BLOCK_DROP_ON_DEATH" default:"false"`

	GroundBroadcast      time.Duration `envconfig:"GROUND_BROADCAST" default:"10s"`
	AuraPeriod           time.Duration `envconfig:"AURA_PERIOD" default:"1s"`
	HeartbeatPeriod      time.Duration `envconfig:"HEARTBEAT_PERIOD" default:"2s"`
	HeartbeatThreshold   time.Duration `envconfig:"HEARTBEAT_THRESHOLD" default:"60s"`
	PitchMin             float64       `envconfig:"PITCH_MIN" default:"0.5"`
	PitchMax             float64       `envconfig:"PITCH_MAX" default:"2.0"`
	AnnouncementCooldown time.Duration `envconfig:"ANNOUNCEMENT_COOLDOWN" default:"2s"`

	LastChance        time.Duration `envconfig:"LAST_CHANCE" default:"60s"`
	WarningFraction   float64       `envconfig:"WARNING_FRACTION" default:"0.05"`
	WarningRepeat     time.Duration `envconfig:"WARNING_REPEAT" default:"300s"`
	IdleWhisperChance float64       `envconfig:"IDLE_WHISPER_CHANCE" default:"0.1"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		MaxRelics:            3,
		Hunger:               24 * time.Hour,
		DeathDropTimer:       300 * time.Second,
		VoidTimer:            300 * time.Second,
		AbandonGrace:         3 * time.Second,
		CraftingEnabled:      true,
		CraftCooldown:        3 * time.Second,
		MaxPerActor:          1,
		GroundBroadcast:      10 * time.Second,
		AuraPeriod:           time.Second,
		HeartbeatPeriod:      2 * time.Second,
		HeartbeatThreshold:   60 * time.Second,
		PitchMin:             0.5,
		PitchMax:             2.0,
		AnnouncementCooldown: 2 * time.Second,
		LastChance:           60 * time.Second,
		WarningFraction:      0.05,
		WarningRepeat:        300 * time.Second,
		IdleWhisperChance:    0.1,
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxRelics < 1:
		return fmt.Errorf("max relics must be at least 1, got %d", c.MaxRelics)
	case c.Hunger <= 0:
		return fmt.Errorf("hunger must be positive, got %s", c.Hunger)
	case c.MaxPerActor < 0:
		return fmt.Errorf("max per actor must not be negative, got %d", c.MaxPerActor)
	case c.AuraPeriod <= 0, c.HeartbeatPeriod <= 0, c.GroundBroadcast <= 0:
		return fmt.Errorf("effect and broadcast periods must be positive")
	case c.PitchMin > c.PitchMax:
		return fmt.Errorf("pitch min %.2f above max %.2f", c.PitchMin, c.PitchMax)
	}
	return nil
}
