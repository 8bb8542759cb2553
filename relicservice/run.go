// Package relicservice wires the relic service together and runs it until
// SIGINT or SIGTERM.
package relicservice

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mycelian/relic-service/internal/api"
	"github.com/mycelian/relic-service/internal/broadcast"
	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/config"
	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/health"
	"github.com/mycelian/relic-service/internal/jobs"
	"github.com/mycelian/relic-service/internal/lifecycle"
	"github.com/mycelian/relic-service/internal/logger"
	"github.com/mycelian/relic-service/internal/narration"
	"github.com/mycelian/relic-service/internal/persistence"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/state"
	"github.com/mycelian/relic-service/internal/world"
)

// Run starts the relic service and blocks until shutdown or error.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	return RunWithConfig(cfg)
}

// RunWithConfig is Run with an already loaded configuration.
func RunWithConfig(cfg *config.Config) error {
	log := logger.New("relic-service", cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("scheduler_mode", string(cfg.Scheduler.Mode)).
		Str("storage_backend", cfg.Storage.Backend).
		Int("http_port", cfg.HTTPPort).
		Msg("Relic service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	svc, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}

	if err := svc.runner.Start(); err != nil {
		log.Error().Stack().Err(err).Msg("background jobs failed to start")
		_ = svc.shutdown(cfg.ShutdownTimeout, nil)
		return err
	}

	svcHealth := startHealthCheckers(ctx, cfg, log, svc)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		_ = svc.shutdown(cfg.ShutdownTimeout, nil)
		return err
	}

	router := api.NewRouter(api.Deps{
		Relics:   svc.engine,
		Health:   svcHealth,
		Stream:   svc.hub,
		Rejected: lifecycle.ErrRejected,
		AdminKey: cfg.AdminKey,
		Log:      logger.Component(log, "http"),
	})
	server := newHTTPServer(ctx, cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		return svc.shutdown(cfg.ShutdownTimeout, server)
	})

	if err := g.Wait(); err != nil {
		log.Error().Stack().Err(err).Msg("relic service stopped with error")
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}

// service holds the long-lived components in start order.
type service struct {
	log    zerolog.Logger
	hub    *broadcast.Hub
	world  *world.World
	sched  scheduler.Scheduler
	store  *state.Store
	bridge *persistence.Bridge
	events *eventlog.Logger
	combat *combat.Engine
	engine *lifecycle.Engine
	runner *jobs.Runner
}

// build constructs every component, restores the saved state and resumes
// ground relic sequences. It fails fast on a missing dependency.
func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*service, error) {
	s := &service{log: log, hub: broadcast.NewHub(logger.Component(log, "broadcast"))}

	w, err := world.New(cfg.World, s.hub, logger.Component(log, "world"))
	if err != nil {
		return nil, err
	}
	s.world = w

	s.sched, err = scheduler.New(cfg.Scheduler, w, logger.Component(log, "scheduler"))
	if err != nil {
		return nil, err
	}

	s.store = state.New()
	backend, err := persistence.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Storage backend unavailable")
		s.sched.Stop()
		return nil, err
	}
	s.bridge = persistence.NewBridge(backend, s.store, s.sched, time.Now, cfg.Storage.SaveTimeout, log)
	ground, err := s.bridge.Load(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Failed to load relic state")
		s.sched.Stop()
		_ = backend.Close()
		return nil, err
	}

	narr, err := narration.Load(cfg.NarrationFile)
	if err != nil {
		s.abort()
		return nil, err
	}
	s.events, err = eventlog.Open(cfg.EventLogDir, time.Now)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("event log: %w", err)
	}

	s.combat = combat.New(cfg.Combat, s.store, cfg.Rules.Hunger, time.Now, logger.Component(log, "combat"))
	s.engine, err = lifecycle.New(cfg.Rules, lifecycle.Deps{
		Scheduler: s.sched,
		Store:     s.store,
		Combat:    s.combat,
		World:     w,
		Narrator:  narr,
		Events:    s.events,
		Dirty:     s.bridge,
		Log:       log,
	})
	if err != nil {
		s.abort()
		return nil, err
	}
	s.engine.Resume(ground)

	s.runner = jobs.NewRunner(cfg.Jobs, s.sched, s.engine, s.combat, s.bridge, logger.Component(log, "jobs"))
	return s, nil
}

// abort releases what build opened before it failed.
func (s *service) abort() {
	s.sched.Stop()
	_ = s.bridge.Close(context.Background())
	if s.events != nil {
		_ = s.events.Close()
	}
}

// shutdown stops intake first, then drains the workers before the command
// stream closes and the final snapshot is written. server may be nil.
func (s *service) shutdown(timeout time.Duration, server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			s.log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			keep(err)
		}
	}
	s.runner.Stop()
	if c, ok := s.sched.(io.Closer); ok {
		keep(c.Close())
	} else {
		s.sched.Stop()
	}
	keep(s.hub.Close())
	if err := s.bridge.Close(ctx); err != nil {
		s.log.Error().Stack().Err(err).Msg("final flush failed")
		keep(err)
	}
	keep(s.events.Close())
	return firstErr
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, s *service) *health.ServiceHealthChecker {
	probeTimeout := cfg.HealthProbeTimeout()
	interval := cfg.HealthInterval()

	checkers := []health.HealthChecker{
		health.NewPingChecker(s.bridge.Name(), s.bridge, log, probeTimeout),
	}
	if p, ok := s.sched.(health.HealthPinger); ok {
		checkers = append(checkers, health.NewPingChecker("scheduler", p, log, probeTimeout))
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// calculateStartupHealthTimeout returns interval*2 seconds with a minimum of 30.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 30 {
		return 30
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
