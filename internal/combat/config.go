package combat

import "time"

// Config holds the kill-scoring tunables (env prefix RELIC_COMBAT_).
type Config struct {
	Enabled     bool `envconfig:"ENABLED"      default:"true"`
	TrackDamage bool `envconfig:"TRACK_DAMAGE" default:"true"`
	AwardKills  bool `envconfig:"AWARD_KILLS"  default:"true"`

	WeightDamageOut  float64 `envconfig:"WEIGHT_DAMAGE_OUT" default:"0.30"`
	WeightDamageIn   float64 `envconfig:"WEIGHT_DAMAGE_IN"  default:"0.35"`
	WeightGear       float64 `envconfig:"WEIGHT_GEAR"       default:"0.15"`
	WeightDuration   float64 `envconfig:"WEIGHT_DURATION"   default:"0.15"`
	WeightDeflection float64 `envconfig:"WEIGHT_DEFLECTION" default:"0.05"`

	WorthyThreshold float64 `envconfig:"WORTHY_THRESHOLD" default:"0.50"`
	EasyThreshold   float64 `envconfig:"EASY_THRESHOLD"   default:"0.25"`

	// Damage components saturate at BaseDamage*DamageMultiplier.
	BaseDamage       float64 `envconfig:"BASE_DAMAGE"       default:"5"`
	DamageMultiplier float64 `envconfig:"DAMAGE_MULTIPLIER" default:"1"`
	ArmorPieces      int     `envconfig:"ARMOR_PIECES"      default:"4"`

	// Minimum damage dealt: FloorBase + heldMinutes*FloorRate.
	FloorBase float64 `envconfig:"FLOOR_BASE" default:"8"`
	FloorRate float64 `envconfig:"FLOOR_RATE" default:"0.5"`

	StaleWindow         time.Duration `envconfig:"STALE_WINDOW" default:"30s"`
	FightGap            time.Duration `envconfig:"FIGHT_GAP" default:"60s"`
	DeflectionWindow    time.Duration `envconfig:"DEFLECTION_WINDOW" default:"600s"`
	MaxRecordsPerVictim int           `envconfig:"MAX_RECORDS_PER_VICTIM" default:"1000"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		TrackDamage:         true,
		AwardKills:          true,
		WeightDamageOut:     0.30,
		WeightDamageIn:      0.35,
		WeightGear:          0.15,
		WeightDuration:      0.15,
		WeightDeflection:    0.05,
		WorthyThreshold:     0.50,
		EasyThreshold:       0.25,
		BaseDamage:          5,
		DamageMultiplier:    1,
		ArmorPieces:         4,
		FloorBase:           8,
		FloorRate:           0.5,
		StaleWindow:         30 * time.Second,
		FightGap:            60 * time.Second,
		DeflectionWindow:    600 * time.Second,
		MaxRecordsPerVictim: 1000,
	}
}
