// Package types holds the values shared by the server and its handlers.
package types

import (
	"time"

	"github.com/nomis52/netactivity/buildinfo"
)

// MetricsMode names how the daemon exports metrics.
type MetricsMode string

const (
	// MetricsModeScrape serves /metrics.
	MetricsModeScrape MetricsMode = "scrape"
	// MetricsModePush sends samples to a remote write endpoint.
	MetricsModePush MetricsMode = "push"
)

// ServerProperties describes the running daemon. They are fixed at start and
// embedded in the status response.
type ServerProperties struct {
	Build       buildinfo.Properties `json:"build"`
	StartedAt   time.Time            `json:"started_at"`
	Hostname    string               `json:"hostname"`
	MetricsMode MetricsMode          `json:"metrics_mode"`
}
