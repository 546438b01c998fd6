package handlers

import (
	"net/http"
)

// StatsHandler returns aggregate pipeline statistics.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.provider.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
