package network

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a Request cannot be sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransport is returned when the request could not complete.
	ErrTransport = errors.New("transport failure")
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected status")
	// ErrDecode is returned when the body does not decode into the requested shape.
	ErrDecode = errors.New("decode failure")
)

// Error is the error type returned by HTTPClient.
// errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind classifies err into a short label suitable for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"

	// Context errors win: a cancelled transport call is a cancellation.
	case errors.Is(err, context.Canceled):
		return "canceled"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"

	case errors.Is(err, ErrStatus):
		return "status"

	case errors.Is(err, ErrDecode):
		return "decode"

	case errors.Is(err, ErrTransport):
		return "transport"

	default:
		return "internal"
	}
}
