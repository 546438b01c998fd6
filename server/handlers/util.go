package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/pipeline"
)

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps the well-known sentinels onto HTTP statuses and writes
// the error body. Anything unrecognized is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, execution.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, execution.ErrInvalidParameters):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunInProgress),
		errors.Is(err, execution.ErrAlreadyTerminal),
		errors.Is(err, execution.ErrStillRunning):
		status = http.StatusConflict
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
