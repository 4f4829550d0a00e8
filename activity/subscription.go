package activity

import "sync"

// Subscription receives the statuses published by a Registry.
type Subscription struct {
	registry *Registry

	mu      sync.Mutex
	pending []Status
	notify  chan struct{}

	updates chan Status
	done    chan struct{}
	once    sync.Once
}

func newSubscription(r *Registry) *Subscription {
	return &Subscription{
		registry: r,
		notify:   make(chan struct{}, 1),
		updates:  make(chan Status),
		done:     make(chan struct{}),
	}
}

// Updates returns the channel statuses are delivered on. The channel is
// closed after Close.
func (s *Subscription) Updates() <-chan Status {
	return s.updates
}

// Close stops delivery and releases the subscription. It is safe to call
// more than once and from any goroutine, including a consumer of Updates.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.registry.unsubscribe(s)
		close(s.done)
	})
	return nil
}

// enqueue appends a status without blocking.
func (s *Subscription) enqueue(status Status) {
	s.mu.Lock()
	s.pending = append(s.pending, status)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next pops the oldest pending status.
func (s *Subscription) next() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, false
	}
	status := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return status, true
}

// run delivers pending statuses in order until Close.
func (s *Subscription) run() {
	defer close(s.updates)
	for {
		status, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.updates <- status:
		case <-s.done:
			return
		}
	}
}
