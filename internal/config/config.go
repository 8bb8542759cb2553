// Package config loads the service configuration from RELIC_* environment
// variables. Each component keeps its own Config type; this package nests
// them under one prefix.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/jobs"
	"github.com/mycelian/relic-service/internal/lifecycle"
	"github.com/mycelian/relic-service/internal/persistence"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/world"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the relic service.
// Environment variables are parsed from the RELIC_ prefix, nested configs
// add their own segment (RELIC_SCHEDULER_MODE, RELIC_RULES_MAX_RELICS, ...).
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort        int           `envconfig:"HTTP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// AdminKey guards the admin routes when set ("Authorization: Bearer <key>").
	AdminKey string `envconfig:"ADMIN_KEY" default:""`

	// Health probes
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"10"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`

	EventLogDir string `envconfig:"EVENT_LOG_DIR" default:"logs"`
	// NarrationFile overrides the built-in message catalog.
	NarrationFile string `envconfig:"NARRATION_FILE" default:""`

	Scheduler scheduler.Config   `envconfig:"SCHEDULER"`
	Rules     lifecycle.Config   `envconfig:"RULES"`
	Combat    combat.Config      `envconfig:"COMBAT"`
	Jobs      jobs.Config        `envconfig:"JOBS"`
	Storage   persistence.Config `envconfig:"STORAGE"`
	World     world.Config       `envconfig:"WORLD"`
}

// ResolveDefaults validates the sub-configs and fills derived values.
func (c *Config) ResolveDefaults() error {
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if _, err := world.ParseSpawns(c.World.Spawns); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case persistence.BackendFile, persistence.BackendSQLite:
	case persistence.BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("RELIC_STORAGE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.Storage.Backend)
	}
	c.Storage = c.Storage.ResolvePaths()

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.HealthIntervalSeconds <= 0 {
		c.HealthIntervalSeconds = 10
	}
	if c.HealthProbeTimeoutSeconds <= 0 {
		c.HealthProbeTimeoutSeconds = 2
	}
	return nil
}

// New creates a new Config by parsing environment variables prefixed with RELIC_.
// Example: RELIC_HTTP_PORT, RELIC_STORAGE_BACKEND
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RELIC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("scheduler_mode", string(cfg.Scheduler.Mode)).
		Int("shards", cfg.Scheduler.Shards).
		Str("storage_backend", cfg.Storage.Backend).
		Str("data_dir", cfg.Storage.DataDir).
		Bool("postgres_dsn_present", cfg.Storage.PostgresDSN != "").
		Int("max_relics", cfg.Rules.MaxRelics).
		Dur("hunger", cfg.Rules.Hunger).
		Bool("crafting", cfg.Rules.CraftingEnabled).
		Bool("combat", cfg.Combat.Enabled).
		Bool("admin_key_present", cfg.AdminKey != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		ShutdownTimeout:           time.Second,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		EventLogDir:               "logs",
		Scheduler:                 scheduler.Config{Mode: scheduler.ModeGlobal},
		Rules:                     lifecycle.DefaultConfig(),
		Combat:                    combat.DefaultConfig(),
		Jobs:                      jobs.DefaultConfig(),
		Storage:                   persistence.Config{Backend: persistence.BackendFile, DataDir: "data"}.ResolvePaths(),
		World:                     world.Config{Spawns: "overworld:0:64:0", DefaultWorld: "overworld", MinHeight: -64},
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// HealthInterval is the probe period of the health checkers.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

// HealthProbeTimeout bounds one probe.
func (c *Config) HealthProbeTimeout() time.Duration {
	return time.Duration(c.HealthProbeTimeoutSeconds) * time.Second
}
