package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nomis52/netactivity/activity"
)

const defaultKeepAlive = 15 * time.Second

// StatusEvent is the data of a status event on the stream.
type StatusEvent struct {
	Status activity.Status `json:"status"`
}

// StatusStreamHandler streams activity status values as Server-Sent Events.
// The first event is the current status; every published value follows in
// order until the client disconnects.
type StatusStreamHandler struct {
	logger     *slog.Logger
	subscriber Subscriber
	keepAlive  time.Duration
}

// NewStatusStreamHandler creates a new StatusStreamHandler.
func NewStatusStreamHandler(logger *slog.Logger, subscriber Subscriber) *StatusStreamHandler {
	return &StatusStreamHandler{
		logger:     logger,
		subscriber: subscriber,
		keepAlive:  defaultKeepAlive,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("status stream requires flushing", "error", err)
		return
	}

	sub := h.subscriber.Subscribe()
	defer sub.Close()

	h.logger.Debug("status stream opened", "remote", r.RemoteAddr)
	defer h.logger.Debug("status stream closed", "remote", r.RemoteAddr)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case status, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(StatusEvent{Status: status})
			if err != nil {
				h.logger.Error("failed to encode status event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
