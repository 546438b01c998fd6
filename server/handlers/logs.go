package handlers

import (
	"net/http"
)

// ExecutionLogsHandler returns the captured logs of an execution, keyed by
// stage. Logs of the stage currently running are included as captured so far.
type ExecutionLogsHandler struct {
	provider LogsProvider
}

// NewExecutionLogsHandler creates a new ExecutionLogsHandler.
func NewExecutionLogsHandler(provider LogsProvider) *ExecutionLogsHandler {
	return &ExecutionLogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ExecutionLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logs, err := h.provider.Logs(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
