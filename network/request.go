package network

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Request describes a single outbound call. Each Request carries a unique ID
// minted by NewRequest; reuse a Request only for retries of the same call.
type Request struct {
	ID      uuid.UUID
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// WithMethod sets the HTTP method. Defaults to GET.
func WithMethod(method string) RequestOption {
	return func(r *Request) {
		r.Method = method
	}
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.Header.Add(key, value)
	}
}

// WithBody sets the request body.
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithTimeout bounds the whole call, including reading the body.
// Zero means no timeout beyond the caller's context.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

// NewRequest creates a Request for rawURL with a fresh ID.
func NewRequest(rawURL string, opts ...RequestOption) *Request {
	r := &Request{
		ID:     uuid.New(),
		Method: http.MethodGet,
		URL:    rawURL,
		Header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks that the request can be sent.
func (r *Request) Validate() error {
	if r == nil {
		return &Error{Kind: ErrInvalidRequest, Err: fmt.Errorf("request is nil")}
	}
	if r.URL == "" {
		return &Error{Kind: ErrInvalidRequest, Err: fmt.Errorf("url is required")}
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return &Error{Kind: ErrInvalidRequest, URL: r.URL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return &Error{Kind: ErrInvalidRequest, URL: r.URL, Err: fmt.Errorf("url must include scheme and host")}
	}
	if r.Timeout < 0 {
		return &Error{Kind: ErrInvalidRequest, URL: r.URL, Err: fmt.Errorf("timeout must not be negative")}
	}
	return nil
}
