package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PingChecker probes a HealthPinger on an interval and caches the result.
type PingChecker struct {
	name         string
	target       HealthPinger
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

func NewPingChecker(name string, target HealthPinger, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	hc := &PingChecker{
		name:         name,
		target:       target,
		log:          log,
		probeTimeout: probeTimeout,
	}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

func (hc *PingChecker) Name() string { return hc.name }

// IsHealthy returns the cached health status (non-blocking).
func (hc *PingChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

// Start begins periodic health checking.
func (hc *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

// Check runs one probe and updates the cached flag.
func (hc *PingChecker) Check(ctx context.Context) bool {
	to := hc.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	if err := hc.target.HealthPing(checkCtx); err != nil {
		if hc.healthy.Swap(0) == 1 {
			hc.log.Error().Stack().
				Str("checker", hc.name).
				Err(err).
				Msg("health check failed")
		}
		return false
	}
	hc.healthy.Store(1)
	return true
}
