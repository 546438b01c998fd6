package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/store"
)

// SnapshotsHandler returns the index snapshot history, newest first.
// An optional ?limit= query parameter bounds the answer.
type SnapshotsHandler struct {
	store SnapshotsReader
}

// NewSnapshotsHandler creates a new SnapshotsHandler.
func NewSnapshotsHandler(store SnapshotsReader) *SnapshotsHandler {
	return &SnapshotsHandler{
		store: store,
	}
}

// ServeHTTP implements http.Handler.
func (h *SnapshotsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid limit %q", raw),
			})
			return
		}
		limit = n
	}

	snaps, err := h.store.LoadSnapshots(r.Context(), limit)
	if err != nil && !errors.Is(err, store.ErrNoData) {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []indices.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}
