package handlers

import (
	"net/http"
)

// HistoryHandler handles requests for the sweep history. With an id query
// parameter it returns that sweep only.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()

	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, history)
		return
	}

	for _, record := range history {
		if record.ID == id {
			writeJSON(w, http.StatusOK, record)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown sweep "+id)
}
