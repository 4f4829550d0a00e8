package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts ...Option) *HTTPClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHTTPClient(append([]Option{WithLogger(logger)}, opts...)...)
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type errorReader struct{}

func (e *errorReader) Read(p []byte) (n int, err error) {
	return 0, errors.New("read error")
}

func (e *errorReader) Close() error {
	return nil
}

func TestHTTPClient_RequestData(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantBody string
		wantErr  error
		errMsg   string
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status", r.URL.Path)
				assert.Equal(t, "netactivity", r.Header.Get("User-Agent"))
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("pong"))
			},
			wantBody: "pong",
		},
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("down for maintenance\n"))
			},
			wantErr: ErrStatus,
			errMsg:  "unexpected status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			body, err := newTestClient().RequestData(context.Background(), NewRequest(ts.URL+"/status"))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, body)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestHTTPClient_StatusErrorDetails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such thing"))
	}))
	defer ts.Close()

	_, err := newTestClient().RequestData(context.Background(), NewRequest(ts.URL))

	var netErr *Error
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.Equal(t, ts.URL, netErr.URL)
	assert.Contains(t, err.Error(), "no such thing")
	assert.Equal(t, "status", Kind(err))
}

func TestHTTPClient_RequestOptions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "abc", r.Header.Get("X-Token"))
		assert.Equal(t, "custom/1.0", r.Header.Get("User-Agent"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"q":1}`, string(body))
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	req := NewRequest(ts.URL,
		WithMethod(http.MethodPost),
		WithHeader("X-Token", "abc"),
		WithBody([]byte(`{"q":1}`)),
	)
	_, err := newTestClient(WithUserAgent("custom/1.0")).RequestData(context.Background(), req)
	require.NoError(t, err)
}

func TestHTTPClient_JSONShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		call    func(c *HTTPClient, req *Request) (any, error)
		want    any
		wantErr error
	}{
		{
			name: "object",
			body: `{"state":"ok","count":2}`,
			call: func(c *HTTPClient, req *Request) (any, error) {
				return c.RequestJSONObject(context.Background(), req)
			},
			want: map[string]any{"state": "ok", "count": float64(2)},
		},
		{
			name: "object given array",
			body: `[1,2]`,
			call: func(c *HTTPClient, req *Request) (any, error) {
				return c.RequestJSONObject(context.Background(), req)
			},
			wantErr: ErrDecode,
		},
		{
			name: "object given null",
			body: `null`,
			call: func(c *HTTPClient, req *Request) (any, error) {
				return c.RequestJSONObject(context.Background(), req)
			},
			wantErr: ErrDecode,
		},
		{
			name: "array",
			body: `["a",1,true]`,
			call: func(c *HTTPClient, req *Request) (any, error) {
				return c.RequestJSONArray(context.Background(), req)
			},
			want: []any{"a", float64(1), true},
		},
		{
			name: "array given invalid json",
			body: `not json`,
			call: func(c *HTTPClient, req *Request) (any, error) {
				return c.RequestJSONArray(context.Background(), req)
			},
			wantErr: ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			got, err := tt.call(newTestClient(), NewRequest(ts.URL))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	type version struct {
		Version string `json:"version"`
		Release string `json:"release"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"7.1-10","release":"2021-11-23"}`))
	}))
	defer ts.Close()

	got, err := Decode[version](context.Background(), newTestClient(), NewRequest(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, version{Version: "7.1-10", Release: "2021-11-23"}, got)
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	req := NewRequest(ts.URL, WithTimeout(20*time.Millisecond))
	_, err := newTestClient().RequestData(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", Kind(err))
}

func TestHTTPClient_Cancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newTestClient().RequestData(ctx, NewRequest(ts.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", Kind(err))
}

func TestHTTPClient_ReadError(t *testing.T) {
	client := newTestClient(WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       &errorReader{},
			}, nil
		}),
	}))

	body, err := client.RequestData(context.Background(), NewRequest("http://example.com"))
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "failed to read response body")
	assert.Empty(t, body)
}

func TestHTTPClient_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
	}{
		{name: "nil request", req: nil},
		{name: "empty url", req: NewRequest("")},
		{name: "missing scheme", req: NewRequest("example.com/status")},
		{name: "negative timeout", req: NewRequest("http://example.com", WithTimeout(-time.Second))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient().RequestData(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, "invalid_request", Kind(err))
		})
	}
}
