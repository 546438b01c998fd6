package handlers

import (
	"net/http"

	"github.com/mcouto/reparcel/store"
)

// HealthResponse reports liveness plus store backend health.
type HealthResponse struct {
	Status string       `json:"status"`
	Store  store.Health `json:"store"`
}

// HealthHandler answers liveness probes. The server is degraded when every
// store backend rejected the last write; execution history would silently
// stop accumulating, so probes should notice.
type HealthHandler struct {
	store HealthReporter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store HealthReporter) *HealthHandler {
	return &HealthHandler{
		store: store,
	}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.store.Health()
	if health.Degraded() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: health})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: health})
}
