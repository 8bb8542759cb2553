package api

import (
	"net/http"
	"time"

	"github.com/mycelian/relic-service/internal/api/respond"
)

// HealthHandler handles GET /api/health.
type HealthHandler struct {
	health Health
}

func NewHealthHandler(h Health) *HealthHandler { return &HealthHandler{health: h} }

// ServeHTTP answers 200 when every component is healthy and 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status, code := "unhealthy", http.StatusServiceUnavailable
	var components map[string]bool
	if h.health != nil {
		if h.health.IsHealthy() {
			status, code = "healthy", http.StatusOK
		}
		components = h.health.Components()
	}
	respond.WriteJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
