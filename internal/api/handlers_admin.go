package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/api/respond"
	"github.com/mycelian/relic-service/internal/model"
)

// AdminHandler exposes the administrative commands. All of them go through
// the lifecycle engine.
type AdminHandler struct {
	relics   Relics
	rejected error
	log      zerolog.Logger
}

type actorRequest struct {
	Actor uuid.UUID `json:"actor"`
}

// Grant POST /api/admin/grant
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) || !requireID(w, req.Actor, "actor") {
		return
	}
	v, err := h.relics.Grant(r.Context(), req.Actor)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	h.log.Info().Str("actor", req.Actor.String()).Str("relic", v.RelicID.String()).Msg("admin grant")
	respond.WriteJSON(w, http.StatusCreated, v)
}

// Revoke POST /api/admin/revoke
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) || !requireID(w, req.Actor, "actor") {
		return
	}
	if err := h.relics.Revoke(r.Context(), req.Actor); err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	h.log.Info().Str("actor", req.Actor.String()).Msg("admin revoke")
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll POST /api/admin/revoke-all
func (h *AdminHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.relics.RevokeAll(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	h.log.Info().Int("removed", n).Msg("admin revoke all")
	respond.WriteJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// Transfer POST /api/admin/transfer
func (h *AdminHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From uuid.UUID `json:"from"`
		To   uuid.UUID `json:"to"`
	}
	if !decode(w, r, &req) || !requireID(w, req.From, "from") || !requireID(w, req.To, "to") {
		return
	}
	v, err := h.relics.Transfer(r.Context(), req.From, req.To)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	h.log.Info().Str("from", req.From.String()).Str("to", req.To.String()).Msg("admin transfer")
	respond.WriteJSON(w, http.StatusOK, v)
}

// ListTimers GET /api/admin/timers
func (h *AdminHandler) ListTimers(w http.ResponseWriter, _ *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"holders": h.relics.Holders(),
		"ground":  h.relics.Ground(),
		"counts":  h.relics.Counts(),
	})
}

// GetTimer GET /api/admin/timers/{actorId}
func (h *AdminHandler) GetTimer(w http.ResponseWriter, r *http.Request) {
	actor, ok := pathID(w, r, "actorId")
	if !ok {
		return
	}
	v, err := h.relics.HolderByActor(actor)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// AdjustTimer POST /api/admin/timers/{actorId} with {"op":"add|remove|reset","seconds":n}
func (h *AdminHandler) AdjustTimer(w http.ResponseWriter, r *http.Request) {
	actor, ok := pathID(w, r, "actorId")
	if !ok {
		return
	}
	var req struct {
		Op      model.TimerOp `json:"op"`
		Seconds int64         `json:"seconds"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := h.relics.AdjustTimer(r.Context(), actor, req.Op, req.Seconds)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// Despawn POST /api/admin/despawn/{relicId}
func (h *AdminHandler) Despawn(w http.ResponseWriter, r *http.Request) {
	relic, ok := pathID(w, r, "relicId")
	if !ok {
		return
	}
	if err := h.relics.DespawnGround(r.Context(), relic); err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	h.log.Info().Str("relic", relic.String()).Msg("admin despawn")
	w.WriteHeader(http.StatusNoContent)
}

// Audit POST /api/admin/audit with {"observations":[...]}
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Observations []model.Observation `json:"observations"`
	}
	if !decode(w, r, &req) {
		return
	}
	report, err := h.relics.Audit(r.Context(), req.Observations)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	respond.WriteJSON(w, http.StatusOK, report)
}
