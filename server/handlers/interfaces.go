// Package handlers provides HTTP handlers for the netactivity server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/config"
	"github.com/nomis52/netactivity/probe"
	"github.com/nomis52/netactivity/server/types"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// ProbeStarter can start a background probe sweep.
type ProbeStarter interface {
	Start(ctx context.Context) error
}

// HistoryProvider provides access to completed sweeps.
type HistoryProvider interface {
	History() []probe.SweepRecord
}

// Subscriber provides a stream of activity status values.
type Subscriber interface {
	Subscribe() *activity.Subscription
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Status() activity.Status
	InFlight() int
	Sweep() probe.SweepStatus
	Results() []probe.Result
	NextRun() *time.Time
}
