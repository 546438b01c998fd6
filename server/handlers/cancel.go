package handlers

import (
	"net/http"
)

// CancelHandler handles cancellation requests for a running execution.
// Cancellation takes effect at the next stage boundary; the stage already
// in flight is left to finish.
type CancelHandler struct {
	controller ExecutionController
}

// NewCancelHandler creates a new CancelHandler.
func NewCancelHandler(controller ExecutionController) *CancelHandler {
	return &CancelHandler{
		controller: controller,
	}
}

// ServeHTTP implements http.Handler.
func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Cancel(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
