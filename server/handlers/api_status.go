package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/probe"
	"github.com/nomis52/netactivity/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	types.ServerProperties

	Status   activity.Status   `json:"status"`
	InFlight int               `json:"in_flight"`
	Sweep    probe.SweepStatus `json:"sweep"`
	NextRun  NextRunResponse   `json:"next_run"`
	Probes   []probe.Result    `json:"probes"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()

	probes := h.provider.Results()
	if probes == nil {
		probes = []probe.Result{}
	}

	writeJSON(w, http.StatusOK, APIStatusResponse{
		ServerProperties: h.provider.Properties(),
		Status:           h.provider.Status(),
		InFlight:         h.provider.InFlight(),
		Sweep:            h.provider.Sweep(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
		Probes: probes,
	})
}
