package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Mode selects the scheduling topology. It is fixed for the life of the process.
type Mode string

const (
	// ModeGlobal runs everything on one worker.
	ModeGlobal Mode = "global"
	// ModePartitioned runs region-scoped work on per-shard workers and global
	// work on a separate coordination worker.
	ModePartitioned Mode = "partitioned"
)

// Config groups the scheduler tunables. Values come from environment variables
// with the prefix "RELIC_SCHEDULER_", e.g. RELIC_SCHEDULER_MODE=partitioned.
type Config struct {
	Mode           Mode          `envconfig:"MODE"            default:"global"`
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"1024"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`
	AsyncWorkers   int           `envconfig:"ASYNC_WORKERS"   default:"4"`
	// RegionSize is the edge length, in blocks, of one spatial partition.
	RegionSize int `envconfig:"REGION_SIZE" default:"512"`
}

// LoadConfig populates Config from environment variables (prefix RELIC_SCHEDULER_).
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("RELIC_SCHEDULER", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate rejects unknown modes.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeGlobal, ModePartitioned:
		return nil
	default:
		return fmt.Errorf("unsupported scheduler mode: %q", c.Mode)
	}
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeGlobal
	}
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.AsyncWorkers <= 0 {
		c.AsyncWorkers = 4
	}
	if c.RegionSize <= 0 {
		c.RegionSize = 512
	}
	return c
}
