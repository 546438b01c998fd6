package handlers

import (
	"net/http"
)

// EvictHandler removes one finished execution from the registry. The
// persisted record on the store is untouched.
type EvictHandler struct {
	controller ExecutionController
}

// NewEvictHandler creates a new EvictHandler.
func NewEvictHandler(controller ExecutionController) *EvictHandler {
	return &EvictHandler{
		controller: controller,
	}
}

// ServeHTTP implements http.Handler.
func (h *EvictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Evict(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EvictAllResponse reports how many executions were evicted.
type EvictAllResponse struct {
	Evicted int `json:"evicted"`
}

// EvictAllHandler removes every finished execution from the registry.
// A running execution is left in place.
type EvictAllHandler struct {
	controller ExecutionController
}

// NewEvictAllHandler creates a new EvictAllHandler.
func NewEvictAllHandler(controller ExecutionController) *EvictAllHandler {
	return &EvictAllHandler{
		controller: controller,
	}
}

// ServeHTTP implements http.Handler.
func (h *EvictAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EvictAllResponse{Evicted: h.controller.EvictAll()})
}
