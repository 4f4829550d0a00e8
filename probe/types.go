package probe

import (
	"time"

	"github.com/nomis52/netactivity/logging"
	"github.com/nomis52/netactivity/network"
)

// SweepState represents the current state of the prober.
type SweepState int

const (
	// SweepStateIdle indicates no sweep is running.
	SweepStateIdle SweepState = iota
	// SweepStateRunning indicates a sweep is in progress.
	SweepStateRunning
)

// String returns the string representation of the sweep state.
func (s SweepState) String() string {
	switch s {
	case SweepStateIdle:
		return "idle"
	case SweepStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s SweepState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// SweepStatus contains information about the current or last sweep.
type SweepStatus struct {
	// State is the current state of the prober.
	State SweepState `json:"state"`
	// StartedAt is when the sweep started. Nil if no sweep has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the sweep ended. Nil if a sweep is in progress or none has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error summarises failed targets. Empty on success.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of probing one target.
type Result struct {
	Target string        `json:"target"`
	URL    string        `json:"url"`
	Shape  network.Shape `json:"shape"`
	// Outcome is network.Kind of the request error.
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code,omitempty"`
	// Bytes is the payload size for data and decode shapes.
	Bytes int `json:"bytes,omitempty"`
	// Items is the number of keys or elements for object and array shapes.
	Items      int                `json:"items,omitempty"`
	Duration   time.Duration      `json:"duration"`
	Error      string             `json:"error,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
	Logs       []logging.LogEntry `json:"logs,omitempty"`
}

// SweepRecord is a completed sweep as kept in a Store.
type SweepRecord struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Error     string    `json:"error,omitempty"`
	Results   []Result  `json:"results"`
}
