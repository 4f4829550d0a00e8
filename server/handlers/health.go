package handlers

import (
	"net/http"

	"github.com/nomis52/netactivity/activity"
)

// StatusHeader carries the activity status on health responses.
const StatusHeader = "X-Netactivity-Status"

// StatusProvider reports the current activity status.
type StatusProvider interface {
	Status() activity.Status
}

// HealthHandler answers liveness checks with "ok" and reports the activity
// status in StatusHeader.
type HealthHandler struct {
	status StatusProvider
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(status StatusProvider) *HealthHandler {
	return &HealthHandler{status: status}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(StatusHeader, h.status.Status().String())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
