package activity

import (
	"io"
	"log/slog"
	"sync"
	"weak"
)

// Gauge receives the in-flight count and status after every mutation.
// Implementations are called with the registry lock held and must not block.
type Gauge interface {
	Set(float64)
}

// Registry tracks in-flight requests and publishes the derived Status.
//
// THREAD SAFETY:
// Register, Deregister and Subscribe share one mutex. The mutation, the status
// computation and the hand-off to every subscriber happen inside it, so all
// subscribers observe the same total order of events.
type Registry struct {
	mu       sync.Mutex
	inFlight map[RequestID]struct{}
	status   Status
	subs     map[*Subscription]struct{}

	logger        *slog.Logger
	inFlightGauge Gauge
	runningGauge  Gauge
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithGauges reports the in-flight count and the running state (0 or 1).
// Either gauge may be nil.
func WithGauges(inFlight, running Gauge) Option {
	return func(r *Registry) {
		r.inFlightGauge = inFlight
		r.runningGauge = running
	}
}

// New creates an idle Registry with no in-flight requests.
func New(opts ...Option) *Registry {
	r := &Registry{
		inFlight: make(map[RequestID]struct{}),
		status:   StatusIdle,
		subs:     make(map[*Subscription]struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register marks id as in flight and publishes the resulting status.
func (r *Registry) Register(id RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inFlight[id]; ok {
		r.logger.Debug("request registered twice", "request_id", id)
	}
	r.inFlight[id] = struct{}{}
	r.publishLocked()
}

// Deregister removes id from the in-flight set and publishes the resulting
// status. Unknown or already removed IDs are ignored, but the status is still
// published.
func (r *Registry) Deregister(id RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inFlight[id]; !ok {
		r.logger.Debug("deregistering unknown request", "request_id", id)
	}
	delete(r.inFlight, id)
	r.publishLocked()
}

// ReleaseFunc returns a closure that deregisters id the first time it is
// called. Later calls do nothing. The closure does not keep the registry alive.
func (r *Registry) ReleaseFunc(id RequestID) func() {
	wp := weak.Make(r)
	var once sync.Once
	return func() {
		once.Do(func() {
			if reg := wp.Value(); reg != nil {
				reg.Deregister(id)
			}
		})
	}
}

// Status returns the most recently published status.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// InFlight returns the number of in-flight requests.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// Subscribers returns the number of open subscriptions.
func (r *Registry) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Subscribe returns a Subscription that first yields the current status and
// then every status published after it.
func (r *Registry) Subscribe() *Subscription {
	s := newSubscription(r)

	r.mu.Lock()
	s.enqueue(r.status)
	r.subs[s] = struct{}{}
	r.mu.Unlock()

	go s.run()
	return s
}

func (r *Registry) unsubscribe(s *Subscription) {
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
}

// publishLocked recomputes the status and hands it to every subscriber.
// r.mu must be held.
func (r *Registry) publishLocked() {
	n := len(r.inFlight)
	r.status = statusFor(n)

	if r.inFlightGauge != nil {
		r.inFlightGauge.Set(float64(n))
	}
	if r.runningGauge != nil {
		r.runningGauge.Set(float64(r.status))
	}

	for s := range r.subs {
		s.enqueue(r.status)
	}
}
