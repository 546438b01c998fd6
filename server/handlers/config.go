package handlers

import (
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ConfigHandler returns the current pipeline configuration as YAML, with
// tokens and passwords masked.
type ConfigHandler struct {
	provider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(h.provider.Config().Redacted())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/yaml")
	w.Write(data)
}

// ReloadHandler re-reads the pipeline configuration from disk. The new
// configuration applies to the next execution; a run already in flight
// keeps the settings it started with.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("configuration reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload configuration: " + err.Error(),
		})
		return
	}

	h.logger.Info("configuration reloaded")
	w.WriteHeader(http.StatusNoContent)
}
