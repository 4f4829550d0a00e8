package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	a := NewRequest("http://example.com")
	b := NewRequest("http://example.com")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, http.MethodGet, a.Method)
	assert.NotNil(t, a.Header)
	assert.Zero(t, a.Timeout)
	assert.NoError(t, a.Validate())

	c := NewRequest("http://example.com", WithMethod(http.MethodPut), WithTimeout(time.Second))
	assert.Equal(t, http.MethodPut, c.Method)
	assert.Equal(t, time.Second, c.Timeout)
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{&Error{Kind: ErrTransport, Err: context.Canceled}, "canceled"},
		{&Error{Kind: ErrTransport, Err: errors.New("connection refused")}, "transport"},
		{&Error{Kind: ErrStatus, StatusCode: 500}, "status"},
		{&Error{Kind: ErrDecode}, "decode"},
		{&Error{Kind: ErrInvalidRequest}, "invalid_request"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: ErrStatus, URL: "http://example.com", StatusCode: 502, Err: errors.New("bad gateway")}
	assert.Equal(t, "unexpected status 502: http://example.com: bad gateway", err.Error())

	bare := &Error{Kind: ErrDecode}
	assert.Equal(t, "decode failure", bare.Error())
	assert.ErrorIs(t, bare, ErrDecode)
}
