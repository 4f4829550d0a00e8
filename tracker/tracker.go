// Package tracker wraps a network.Client so that every request is recorded in
// an activity.Registry while it is in flight.
//
// The wrapper is transparent: results and errors from the inner client are
// returned unchanged. Each request is registered before it is handed to the
// inner client and deregistered exactly once when it succeeds, fails or its
// context is cancelled, whichever happens first.
//
//	client, err := tracker.New(network.NewHTTPClient())
//	if err != nil {
//	    return err
//	}
//	sub := client.Subscribe()
//	defer sub.Close()
//	go func() {
//	    for status := range sub.Updates() {
//	        logger.Info("network activity", "status", status)
//	    }
//	}()
//	body, err := client.RequestData(ctx, network.NewRequest(url))
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/metrics"
	"github.com/nomis52/netactivity/network"
)

const instrumentationName = "github.com/nomis52/netactivity/tracker"

// errPanic ends tracking of a request whose inner call panicked.
var errPanic = errors.New("inner client panicked")

// Client is a network.Client that tracks in-flight requests.
type Client struct {
	inner    network.Client
	registry *activity.Registry
	logger   *slog.Logger
	tracer   trace.Tracer

	metricsReg metrics.Registry
	requests   metrics.CounterVec
	byShape    metrics.GaugeVec

	// shapeMu orders byShape updates with the counts they report.
	shapeMu     sync.Mutex
	shapeCounts map[network.Shape]int
}

var _ network.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRegistry tracks requests in an existing registry instead of a new one.
func WithRegistry(r *activity.Registry) Option {
	return func(c *Client) {
		c.registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracerProvider sets the provider used to create request spans.
// Defaults to the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMetrics records request counts and the registry gauges in reg.
func WithMetrics(reg metrics.Registry) Option {
	return func(c *Client) {
		c.metricsReg = reg
	}
}

// New wraps inner. The returned error is only non-nil when metric
// registration fails.
func New(inner network.Client, opts ...Option) (*Client, error) {
	c := &Client{
		inner:  inner,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	var regOpts []activity.Option
	regOpts = append(regOpts, activity.WithLogger(c.logger))
	if c.metricsReg != nil {
		inFlight, err := c.metricsReg.NewGauge(prometheus.GaugeOpts{
			Name: "inflight_requests",
			Help: "Number of tracked requests currently in flight",
		})
		if err != nil {
			return nil, fmt.Errorf("creating in-flight gauge: %w", err)
		}
		running, err := c.metricsReg.NewGauge(prometheus.GaugeOpts{
			Name: "activity_running",
			Help: "1 while at least one tracked request is in flight",
		})
		if err != nil {
			return nil, fmt.Errorf("creating running gauge: %w", err)
		}
		c.requests, err = c.metricsReg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Tracked requests by response shape and outcome",
		}, []string{"shape", "outcome"})
		if err != nil {
			return nil, fmt.Errorf("creating request counter: %w", err)
		}
		c.byShape, err = c.metricsReg.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inflight_requests_by_shape",
			Help: "Number of tracked requests in flight by response shape",
		}, []string{"shape"})
		if err != nil {
			return nil, fmt.Errorf("creating in-flight by shape gauge: %w", err)
		}
		c.shapeCounts = make(map[network.Shape]int)
		for _, shape := range network.Shapes() {
			c.byShape.With(prometheus.Labels{"shape": string(shape)}).Set(0)
		}
		regOpts = append(regOpts, activity.WithGauges(inFlight, running))
	}

	if c.registry == nil {
		c.registry = activity.New(regOpts...)
	} else if c.metricsReg != nil {
		c.logger.Warn("metrics configured with an external registry, gauges are not reported")
	}
	return c, nil
}

// Subscribe returns a subscription to the activity status. See
// activity.Registry.Subscribe.
func (c *Client) Subscribe() *activity.Subscription {
	return c.registry.Subscribe()
}

// Status returns the current activity status.
func (c *Client) Status() activity.Status {
	return c.registry.Status()
}

// InFlight returns the number of tracked requests in flight.
func (c *Client) InFlight() int {
	return c.registry.InFlight()
}

// Registry returns the registry requests are tracked in.
func (c *Client) Registry() *activity.Registry {
	return c.registry
}

// RequestData implements network.Client.
func (c *Client) RequestData(ctx context.Context, req *network.Request) (data []byte, err error) {
	ctx, finish := c.track(ctx, req, network.ShapeData)
	defer settle(finish, &err)
	return c.inner.RequestData(ctx, req)
}

// RequestJSONObject implements network.Client.
func (c *Client) RequestJSONObject(ctx context.Context, req *network.Request) (obj map[string]any, err error) {
	ctx, finish := c.track(ctx, req, network.ShapeJSONObject)
	defer settle(finish, &err)
	return c.inner.RequestJSONObject(ctx, req)
}

// RequestJSONArray implements network.Client.
func (c *Client) RequestJSONArray(ctx context.Context, req *network.Request) (arr []any, err error) {
	ctx, finish := c.track(ctx, req, network.ShapeJSONArray)
	defer settle(finish, &err)
	return c.inner.RequestJSONArray(ctx, req)
}

// RequestDecodable implements network.Client.
func (c *Client) RequestDecodable(ctx context.Context, req *network.Request, v any) (err error) {
	ctx, finish := c.track(ctx, req, network.ShapeDecodable)
	defer settle(finish, &err)
	return c.inner.RequestDecodable(ctx, req, v)
}

// settle ends tracking with *err. If the inner client panicked, tracking ends
// with errPanic and the panic continues up the stack.
func settle(finish func(error), err *error) {
	if r := recover(); r != nil {
		finish(fmt.Errorf("%w: %v", errPanic, r))
		panic(r)
	}
	finish(*err)
}

// track registers req and returns the context to hand to the inner client
// together with the function that ends tracking. Tracking ends exactly once:
// either when finish is called or when ctx is cancelled, whichever is first.
func (c *Client) track(ctx context.Context, req *network.Request, shape network.Shape) (context.Context, func(error)) {
	id := requestID(req)
	c.registry.Register(id)
	c.addInFlight(shape, 1)
	release := c.registry.ReleaseFunc(id)

	ctx, span := c.tracer.Start(ctx, "network.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(spanAttrs(req, id, shape)...),
	)
	start := time.Now()

	var once sync.Once
	end := func(err error) {
		once.Do(func() {
			release()
			c.addInFlight(shape, -1)
			outcome := network.Kind(err)
			if c.requests != nil {
				c.requests.With(prometheus.Labels{"shape": string(shape), "outcome": outcome}).Inc()
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)
			}
			span.SetAttributes(attribute.String("request.outcome", outcome))
			span.End()
			c.logger.Debug("request finished",
				"request_id", id,
				"shape", shape,
				"outcome", outcome,
				"duration", time.Since(start),
			)
		})
	}

	stop := context.AfterFunc(ctx, func() {
		end(context.Cause(ctx))
	})

	return ctx, func(err error) {
		stop()
		end(err)
	}
}

// addInFlight adjusts the in-flight count reported for shape.
func (c *Client) addInFlight(shape network.Shape, delta int) {
	if c.byShape == nil {
		return
	}
	c.shapeMu.Lock()
	defer c.shapeMu.Unlock()
	c.shapeCounts[shape] += delta
	c.byShape.With(prometheus.Labels{"shape": string(shape)}).Set(float64(c.shapeCounts[shape]))
}

// requestID returns the ID to track req under. A nil request still gets a
// fresh ID so the inner client can report the error while the event pairs up.
func requestID(req *network.Request) activity.RequestID {
	if req == nil {
		return activity.NewRequestID()
	}
	return req.ID
}

func spanAttrs(req *network.Request, id activity.RequestID, shape network.Shape) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("request.id", id.String()),
		attribute.String("request.shape", string(shape)),
	}
	if req != nil {
		attrs = append(attrs,
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
		)
	}
	return attrs
}
