package activity

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestID identifies a single outbound request.
type RequestID = uuid.UUID

// NewRequestID returns a random RequestID.
func NewRequestID() RequestID {
	return uuid.New()
}

// Status is the derived activity state of a Registry.
type Status int

const (
	// StatusIdle means no request is in flight.
	StatusIdle Status = iota
	// StatusRunning means at least one request is in flight.
	StatusRunning
)

// statusFor derives the status from the in-flight count.
func statusFor(inFlight int) Status {
	if inFlight == 0 {
		return StatusIdle
	}
	return StatusRunning
}

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusIdle, StatusRunning:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "running":
		*s = StatusRunning
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}
