package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler re-reads the config file. The probe targets and the log level
// are swapped in place; results of removed targets are dropped. Listener,
// metrics and schedule changes are only logged and need a restart.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{logger: logger, reloader: reloader}
}

// ServeHTTP implements http.Handler. It replies 204 on success and 500 with
// the load or validation error otherwise, leaving the old config running.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("config reload requested", "remote", r.RemoteAddr)

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("config reload failed, keeping current config", "error", err)
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
