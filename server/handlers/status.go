package handlers

import (
	"net/http"
	"time"

	"github.com/mcouto/reparcel/pipeline"
	"github.com/mcouto/reparcel/server/types"
	"github.com/mcouto/reparcel/store"
)

// NextRunResponse is the JSON response for the next scheduled run.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// StatusResponse is the consolidated response for GET /api/status.
type StatusResponse struct {
	Server  types.ServerProperties `json:"server"`
	Run     pipeline.RunStatus     `json:"run"`
	NextRun NextRunResponse        `json:"next_run"`
	Store   store.Health           `json:"store"`
}

// StatusHandler handles requests for the consolidated status endpoint.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()

	resp := StatusResponse{
		Server: h.provider.Properties(),
		Run:    h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
		Store: h.provider.Health(),
	}

	writeJSON(w, http.StatusOK, resp)
}
