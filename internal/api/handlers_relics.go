package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mycelian/relic-service/internal/api/respond"
	"github.com/mycelian/relic-service/internal/model"
)

const maxBody = 1 << 20

// RelicHandler serves the read-only queries. Every response is a copy.
type RelicHandler struct {
	relics   Relics
	rejected error
}

// ListHolders GET /api/relics/holders
func (h *RelicHandler) ListHolders(w http.ResponseWriter, _ *http.Request) {
	holders := h.relics.Holders()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"holders": holders, "count": len(holders)})
}

// ListGround GET /api/relics/ground
func (h *RelicHandler) ListGround(w http.ResponseWriter, _ *http.Request) {
	ground := h.relics.Ground()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"ground": ground, "count": len(ground)})
}

// GetCounts GET /api/relics/counts
func (h *RelicHandler) GetCounts(w http.ResponseWriter, _ *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.relics.Counts())
}

// GetHolder GET /api/relics/actors/{actorId}
func (h *RelicHandler) GetHolder(w http.ResponseWriter, r *http.Request) {
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

// GetRelic GET /api/relics/{relicId}
func (h *RelicHandler) GetRelic(w http.ResponseWriter, r *http.Request) {
	relic, ok := pathID(w, r, "relicId")
	if !ok {
		return
	}
	v, err := h.relics.Relic(relic)
	if err != nil {
		respond.WriteDomainError(w, err, h.rejected)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// pathID parses a uuid path variable, writing 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respond.WriteBadRequest(w, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into dst, writing 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return false
	}
	return true
}

// requireID writes 400 when id is nil.
func requireID(w http.ResponseWriter, id uuid.UUID, name string) bool {
	if id == uuid.Nil {
		respond.WriteDomainError(w, fmt.Errorf("%s is required: %w", name, model.ErrValidation), nil)
		return false
	}
	return true
}
