package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mcouto/reparcel/queue"
	"github.com/mcouto/reparcel/store"
)

// QueueHandler returns the persisted work queue, superseded items included.
type QueueHandler struct {
	store QueueReader
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(store QueueReader) *QueueHandler {
	return &QueueHandler{
		store: store,
	}
}

// ServeHTTP implements http.Handler.
func (h *QueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.LoadQueue(r.Context())
	if err != nil && !errors.Is(err, store.ErrNoData) {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// QueueRebuildHandler regenerates the work queue from a caller-supplied
// contract list in the analysis stage's output shape. Previously pending
// items are superseded. Refused while an execution is running.
type QueueRebuildHandler struct {
	rebuilder QueueRebuilder
}

// NewQueueRebuildHandler creates a new QueueRebuildHandler.
func NewQueueRebuildHandler(rebuilder QueueRebuilder) *QueueRebuildHandler {
	return &QueueRebuildHandler{
		rebuilder: rebuilder,
	}
}

// ServeHTTP implements http.Handler.
func (h *QueueRebuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	records, err := queue.FromStageData(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	items, err := h.rebuilder.RebuildQueue(r.Context(), records)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}
