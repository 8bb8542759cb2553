package scheduler

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv("RELIC_SCHEDULER_MODE")
	os.Unsetenv("RELIC_SCHEDULER_SHARDS")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModeGlobal {
		t.Fatalf("expected global mode, got %q", cfg.Mode)
	}
	if cfg.Shards != 4 || cfg.QueueSize != 1024 || cfg.EnqueueTimeout != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RELIC_SCHEDULER_MODE", "partitioned")
	t.Setenv("RELIC_SCHEDULER_SHARDS", "16")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModePartitioned || cfg.Shards != 16 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("RELIC_SCHEDULER_MODE", "round-robin")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNilTaskIsCancelled(t *testing.T) {
	var task *Task
	task.Cancel()
	if !task.Cancelled() || task.ID() != 0 || task.Runs() != 0 || task.Scope() != "" {
		t.Fatal("nil task should behave as a cancelled handle")
	}
}
