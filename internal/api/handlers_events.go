package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/api/respond"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relic",
	Subsystem: "http",
	Name:      "events_total",
	Help:      "World events received, by kind and outcome.",
}, []string{"kind", "outcome"})

// EventHandler ingests world events reported by the game server.
type EventHandler struct {
	relics   Relics
	rejected error
	log      zerolog.Logger
}

// Ingest POST /api/events/{kind}
//
// Fire-and-forget kinds answer 202 once routed to their worker, or 503 when
// the scheduler refused them. pickup and craft wait and return the holder.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	switch kind {
	case "damage":
		var ev model.DamageEvent
		if decode(w, r, &ev) && requireID(w, ev.Victim, "victim") {
			h.accepted(w, kind, h.relics.Damage(ev))
		}
	case "deflection":
		var ev model.DeflectionEvent
		if decode(w, r, &ev) && requireID(w, ev.Victim, "victim") {
			h.accepted(w, kind, h.relics.Deflection(ev))
		}
	case "death":
		var ev model.DeathEvent
		if decode(w, r, &ev) && requireID(w, ev.Victim, "victim") {
			h.accepted(w, kind, h.relics.Death(ev))
		}
	case "join":
		var ev model.JoinEvent
		if decode(w, r, &ev) && requireID(w, ev.Actor, "actor") {
			h.accepted(w, kind, h.relics.Join(ev))
		}
	case "quit":
		var ev model.QuitEvent
		if decode(w, r, &ev) && requireID(w, ev.Actor, "actor") {
			h.accepted(w, kind, h.relics.Quit(ev))
		}
	case "move":
		var ev model.MoveEvent
		if decode(w, r, &ev) && requireID(w, ev.Actor, "actor") {
			h.relics.Move(ev)
			eventsTotal.WithLabelValues(kind, "accepted").Inc()
			w.WriteHeader(http.StatusAccepted)
		}
	case "void":
		var ev model.VoidEvent
		if !decode(w, r, &ev) {
			return
		}
		if ev.Relic == uuid.Nil {
			// Untagged items are not tracked; nothing to route.
			eventsTotal.WithLabelValues(kind, "ignored").Inc()
			w.WriteHeader(http.StatusAccepted)
			return
		}
		h.accepted(w, kind, h.relics.Void(ev))
	case "despawn":
		var ev model.DespawnEvent
		if decode(w, r, &ev) && requireID(w, ev.Relic, "relic") {
			h.accepted(w, kind, h.relics.Despawn(ev))
		}
	case "break":
		var ev model.BreakEvent
		if decode(w, r, &ev) && requireID(w, ev.Actor, "actor") {
			h.accepted(w, kind, h.relics.Break(ev))
		}
	case "pickup":
		var ev model.PickupEvent
		if decode(w, r, &ev) {
			v, err := h.relics.Pickup(r.Context(), ev)
			h.answered(w, kind, v, err)
		}
	case "craft":
		var ev model.CraftEvent
		if decode(w, r, &ev) {
			v, err := h.relics.Craft(r.Context(), ev)
			h.answered(w, kind, v, err)
		}
	default:
		respond.WriteNotFound(w, "unknown event kind "+kind)
	}
}

func (h *EventHandler) accepted(w http.ResponseWriter, kind string, t *scheduler.Task) {
	if t.Cancelled() {
		eventsTotal.WithLabelValues(kind, "rejected").Inc()
		h.log.Warn().Str("kind", kind).Msg("event not scheduled")
		respond.WriteUnavailable(w, "event not scheduled")
		return
	}
	eventsTotal.WithLabelValues(kind, "accepted").Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (h *EventHandler) answered(w http.ResponseWriter, kind string, v model.HolderView, err error) {
	if err != nil {
		eventsTotal.WithLabelValues(kind, "refused").Inc()
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	eventsTotal.WithLabelValues(kind, "ok").Inc()
	respond.WriteJSON(w, http.StatusOK, v)
}
