package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultUserAgent = "netactivity"
	// maxErrorBody caps how much of a failed response is kept in an Error.
	maxErrorBody = 512
)

// HTTPClient implements Client with net/http.
type HTTPClient struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent sent when the request has none.
func WithUserAgent(ua string) Option {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		client:    &http.Client{},
		logger:    slog.Default(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestData returns the response body.
func (c *HTTPClient) RequestData(ctx context.Context, req *Request) ([]byte, error) {
	return c.do(ctx, req)
}

// RequestJSONObject decodes the response body as a JSON object.
func (c *HTTPClient) RequestJSONObject(ctx context.Context, req *Request) (map[string]any, error) {
	var obj map[string]any
	if err := c.RequestDecodable(ctx, req, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &Error{Kind: ErrDecode, URL: req.URL, Err: fmt.Errorf("expected JSON object, got null")}
	}
	return obj, nil
}

// RequestJSONArray decodes the response body as a JSON array.
func (c *HTTPClient) RequestJSONArray(ctx context.Context, req *Request) ([]any, error) {
	var arr []any
	if err := c.RequestDecodable(ctx, req, &arr); err != nil {
		return nil, err
	}
	if arr == nil {
		return nil, &Error{Kind: ErrDecode, URL: req.URL, Err: fmt.Errorf("expected JSON array, got null")}
	}
	return arr, nil
}

// RequestDecodable decodes the JSON response body into v.
func (c *HTTPClient) RequestDecodable(ctx context.Context, req *Request, v any) error {
	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Kind: ErrDecode, URL: req.URL, Err: err}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidRequest, URL: req.URL, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", "request_id", req.ID, "url", req.URL, "error", err)
		return nil, &Error{Kind: ErrTransport, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		statusErr := &Error{Kind: ErrStatus, URL: req.URL, StatusCode: resp.StatusCode}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if snippet = bytes.TrimSpace(snippet); len(snippet) > 0 {
			statusErr.Err = errors.New(string(snippet))
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, URL: req.URL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("request completed",
		"request_id", req.ID,
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return data, nil
}
