package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/netactivity/probe"
)

// ProbeHandler handles requests to trigger a probe sweep.
type ProbeHandler struct {
	logger  *slog.Logger
	starter ProbeStarter
}

// NewProbeHandler creates a new ProbeHandler.
func NewProbeHandler(logger *slog.Logger, starter ProbeStarter) *ProbeHandler {
	return &ProbeHandler{
		logger:  logger,
		starter: starter,
	}
}

// ServeHTTP implements http.Handler.
func (h *ProbeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.starter.Start(r.Context()); err != nil {
		if errors.Is(err, probe.ErrSweepInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start probe sweep", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("probe sweep requested", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}
