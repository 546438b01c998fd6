package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RunRequest defines the request body for POST /api/run. Every field is
// optional; missing ones fall back to the configured defaults, so an empty
// body starts a run with the standard spreadsheets.
type RunRequest struct {
	TargetSheetID  string `json:"target_sheet_id"`
	CalcSheetID    string `json:"calc_sheet_id"`
	SupportSheetID string `json:"support_sheet_id"`
	CredentialsRef string `json:"credentials_ref"`
}

// RunResponse carries the id of the accepted execution.
type RunResponse struct {
	ID string `json:"id"`
}

// RunHandler handles requests to start a pipeline execution.
type RunHandler struct {
	starter RunStarter
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(starter RunStarter) *RunHandler {
	return &RunHandler{
		starter: starter,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	params := h.starter.DefaultParams()
	if req.TargetSheetID != "" {
		params.TargetSheetID = req.TargetSheetID
	}
	if req.CalcSheetID != "" {
		params.CalcSheetID = req.CalcSheetID
	}
	if req.SupportSheetID != "" {
		params.SupportSheetID = req.SupportSheetID
	}
	if req.CredentialsRef != "" {
		params.CredentialsRef = req.CredentialsRef
	}

	id, err := h.starter.StartRun(params, "api")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{ID: id})
}
