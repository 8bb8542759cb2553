// Package api is the HTTP surface of the relic service: world-event ingest,
// read-only queries, the admin commands, health, metrics and the command
// stream.
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/api/recovery"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
)

// Relics is the lifecycle surface the handlers drive.
type Relics interface {
	Holders() []model.HolderView
	Ground() []model.GroundView
	Counts() model.Counts
	HolderByActor(actor uuid.UUID) (model.HolderView, error)
	Relic(relic uuid.UUID) (model.RelicView, error)

	Damage(ev model.DamageEvent) *scheduler.Task
	Deflection(ev model.DeflectionEvent) *scheduler.Task
	Death(ev model.DeathEvent) *scheduler.Task
	Pickup(ctx context.Context, ev model.PickupEvent) (model.HolderView, error)
	Join(ev model.JoinEvent) *scheduler.Task
	Quit(ev model.QuitEvent) *scheduler.Task
	Move(ev model.MoveEvent)
	Void(ev model.VoidEvent) *scheduler.Task
	Despawn(ev model.DespawnEvent) *scheduler.Task
	Craft(ctx context.Context, ev model.CraftEvent) (model.HolderView, error)
	Break(ev model.BreakEvent) *scheduler.Task

	Grant(ctx context.Context, actor uuid.UUID) (model.HolderView, error)
	Revoke(ctx context.Context, actor uuid.UUID) error
	RevokeAll(ctx context.Context) (int, error)
	Transfer(ctx context.Context, from, to uuid.UUID) (model.HolderView, error)
	AdjustTimer(ctx context.Context, actor uuid.UUID, op model.TimerOp, seconds int64) (model.HolderView, error)
	DespawnGround(ctx context.Context, relic uuid.UUID) error
	Audit(ctx context.Context, seen []model.Observation) (model.AuditReport, error)
}

// Health reports the cached service and component health.
type Health interface {
	IsHealthy() bool
	Components() map[string]bool
}

type Deps struct {
	Relics Relics
	Health Health
	// Stream serves the websocket command stream; nil disables /ws.
	Stream http.Handler
	// Rejected is the error Relics returns when work could not be scheduled.
	Rejected error
	// AdminKey, when set, is required as a bearer token on /api/admin routes.
	AdminKey string
	Log      zerolog.Logger
}

// NewRouter creates the HTTP router with every route registered.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(d.Log))

	relics := &RelicHandler{relics: d.Relics, rejected: d.Rejected}
	events := &EventHandler{relics: d.Relics, rejected: d.Rejected, log: d.Log}
	admin := &AdminHandler{relics: d.Relics, rejected: d.Rejected, log: d.Log}

	// Health and metrics
	router.Handle("/api/health", NewHealthHandler(d.Health)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if d.Stream != nil {
		router.Handle("/ws", d.Stream).Methods("GET")
	}

	// Queries
	router.HandleFunc("/api/relics/holders", relics.ListHolders).Methods("GET")
	router.HandleFunc("/api/relics/ground", relics.ListGround).Methods("GET")
	router.HandleFunc("/api/relics/counts", relics.GetCounts).Methods("GET")
	router.HandleFunc("/api/relics/actors/{actorId}", relics.GetHolder).Methods("GET")
	router.HandleFunc("/api/relics/{relicId}", relics.GetRelic).Methods("GET")

	// World events
	router.HandleFunc("/api/events/{kind}", events.Ingest).Methods("POST")

	// Admin commands
	a := router.PathPrefix("/api/admin").Subrouter()
	a.Use(requireKey(d.AdminKey))
	a.HandleFunc("/grant", admin.Grant).Methods("POST")
	a.HandleFunc("/revoke", admin.Revoke).Methods("POST")
	a.HandleFunc("/revoke-all", admin.RevokeAll).Methods("POST")
	a.HandleFunc("/transfer", admin.Transfer).Methods("POST")
	a.HandleFunc("/timers", admin.ListTimers).Methods("GET")
	a.HandleFunc("/timers/{actorId}", admin.GetTimer).Methods("GET")
	a.HandleFunc("/timers/{actorId}", admin.AdjustTimer).Methods("POST")
	a.HandleFunc("/despawn/{relicId}", admin.Despawn).Methods("POST")
	a.HandleFunc("/audit", admin.Audit).Methods("POST")

	return router
}
