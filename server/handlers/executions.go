package handlers

import (
	"net/http"
)

// ExecutionsHandler handles requests for the execution list.
type ExecutionsHandler struct {
	reader ExecutionReader
}

// NewExecutionsHandler creates a new ExecutionsHandler.
func NewExecutionsHandler(reader ExecutionReader) *ExecutionsHandler {
	return &ExecutionsHandler{
		reader: reader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ExecutionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reader.Records())
}

// ExecutionHandler handles requests for a single execution record.
type ExecutionHandler struct {
	reader ExecutionReader
}

// NewExecutionHandler creates a new ExecutionHandler.
func NewExecutionHandler(reader ExecutionReader) *ExecutionHandler {
	return &ExecutionHandler{
		reader: reader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ExecutionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reader.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
