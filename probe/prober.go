// Package probe sweeps configured HTTP targets through a network.Client.
//
// A Prober is usually handed the tracking client, so every sweep shows up in
// the activity status while its requests are in flight. Each target gets its
// own capturing logger; the most recent entries are reported with its result.
//
//	p := probe.New(client, cfg.Probes.Targets, probe.WithConcurrency(4))
//	if err := p.Sweep(ctx); err != nil {
//	    logger.Warn("sweep failed", "error", err)
//	}
//	for _, r := range p.Results() {
//	    fmt.Println(r.Target, r.Outcome, r.Duration)
//	}
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nomis52/netactivity/config"
	"github.com/nomis52/netactivity/logging"
	"github.com/nomis52/netactivity/network"
)

const defaultConcurrency = 4

var (
	// ErrSweepInProgress is returned when a sweep is started while one is running.
	ErrSweepInProgress = errors.New("probe sweep already in progress")
	// ErrTargetsFailed is returned by Sweep when at least one target failed.
	ErrTargetsFailed = errors.New("probe targets failed")
)

// Prober probes a fixed set of targets.
type Prober struct {
	client      network.Client
	targets     []config.TargetConfig
	concurrency int
	logger      *slog.Logger
	collector   *logging.Collector
	store       Store

	mu      sync.Mutex
	status  SweepStatus
	results map[string]Result
}

// Option configures a Prober.
type Option func(*Prober)

// WithConcurrency limits how many targets are probed at once.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		p.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithStore records completed sweeps in store. Defaults to a MemoryStore.
func WithStore(store Store) Option {
	return func(p *Prober) {
		p.store = store
	}
}

// WithLogHistory sets how many log entries are kept per target.
func WithLogHistory(n int) Option {
	return func(p *Prober) {
		p.collector = logging.NewCollector(n)
	}
}

// New creates a Prober for targets.
func New(client network.Client, targets []config.TargetConfig, opts ...Option) *Prober {
	p := &Prober{
		client:      client,
		targets:     targets,
		concurrency: defaultConcurrency,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		results:     make(map[string]Result),
		status:      SweepStatus{State: SweepStateIdle},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.collector == nil {
		p.collector = logging.NewCollector(logging.DefaultHistory)
	}
	if p.store == nil {
		p.store = NewMemoryStore(DefaultHistorySize)
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	return p
}

// Run performs a sweep. It lets a Prober be driven by a cron trigger.
func (p *Prober) Run(ctx context.Context) error {
	return p.Sweep(ctx)
}

// Sweep probes every target and blocks until all of them are done.
// Returns ErrSweepInProgress if a sweep is already running and an error
// wrapping ErrTargetsFailed if any target failed.
func (p *Prober) Sweep(ctx context.Context) error {
	if !p.tryStart() {
		return ErrSweepInProgress
	}
	err := p.sweep(ctx)
	p.finish(err)
	return err
}

// Start begins a sweep in the background. The sweep is not cancelled when
// ctx is; it only inherits its values.
func (p *Prober) Start(ctx context.Context) error {
	if !p.tryStart() {
		return ErrSweepInProgress
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		p.finish(p.sweep(ctx))
	}()
	return nil
}

// SetTargets replaces the targets used by the next sweep. Results of
// targets that are no longer configured are dropped.
func (p *Prober) SetTargets(targets []config.TargetConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.targets = targets
	keep := make(map[string]bool, len(targets))
	for _, target := range targets {
		keep[target.Name] = true
	}
	for name := range p.results {
		if !keep[name] {
			delete(p.results, name)
		}
	}
}

// Status returns the current or last sweep status.
func (p *Prober) Status() SweepStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Results returns the latest result of every probed target, ordered by
// target name, with the target's recent log entries.
func (p *Prober) Results() []Result {
	p.mu.Lock()
	results := make([]Result, 0, len(p.results))
	for _, r := range p.results {
		results = append(results, r)
	}
	p.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Target < results[j].Target
	})
	for i := range results {
		results[i].Logs = p.collector.Get(results[i].Target)
	}
	return results
}

// History returns completed sweeps, most recent first.
func (p *Prober) History() []SweepRecord {
	return p.store.History()
}

// tryStart attempts to transition from idle to running.
// Returns true if successful, false if already running.
func (p *Prober) tryStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.State == SweepStateRunning {
		return false
	}

	now := time.Now()
	p.status = SweepStatus{
		State:     SweepStateRunning,
		StartedAt: &now,
	}
	return true
}

// finish transitions from running to idle and records the sweep.
func (p *Prober) finish(err error) {
	results := p.Results()

	p.mu.Lock()
	endTime := time.Now()
	startTime := *p.status.StartedAt
	p.status.State = SweepStateIdle
	p.status.EndedAt = &endTime
	p.status.Error = ""
	if err != nil {
		p.status.Error = err.Error()
	}
	p.mu.Unlock()

	duration := endTime.Sub(startTime)
	if err != nil {
		p.logger.Warn("probe sweep failed", "error", err, "duration", duration)
	} else {
		p.logger.Info("probe sweep completed", "targets", len(results), "duration", duration)
	}

	record := SweepRecord{
		ID:        uuid.NewString(),
		StartedAt: startTime,
		EndedAt:   endTime,
		Results:   results,
	}
	if err != nil {
		record.Error = err.Error()
	}
	if err := p.store.Save(record); err != nil {
		p.logger.Error("failed to save sweep", "error", err)
	}
}

func (p *Prober) sweep(ctx context.Context) error {
	p.mu.Lock()
	targets := p.targets
	p.mu.Unlock()

	p.logger.Info("starting probe sweep", "targets", len(targets), "concurrency", p.concurrency)

	// Targets fail independently, so errgroup is only used for the limit.
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	var failed atomic.Int32
	for _, target := range targets {
		g.Go(func() error {
			result := p.probe(ctx, target)
			if result.Error != "" {
				failed.Add(1)
			}
			p.mu.Lock()
			p.results[result.Target] = result
			p.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrTargetsFailed, n, len(targets))
	}
	return nil
}

func (p *Prober) probe(ctx context.Context, target config.TargetConfig) Result {
	logger := logging.NewCapturingLogger(p.logger, p.collector, target.Name).With("target", target.Name)

	opts := []network.RequestOption{
		network.WithMethod(target.Method),
		network.WithTimeout(target.Timeout),
	}
	for k, v := range target.Headers {
		opts = append(opts, network.WithHeader(k, v))
	}
	req := network.NewRequest(target.URL, opts...)
	logger.Debug("probing target", "url", target.URL, "shape", target.Shape, "request_id", req.ID)

	result := Result{
		Target: target.Name,
		URL:    target.URL,
		Shape:  target.Shape,
	}

	start := time.Now()
	var err error
	switch target.Shape {
	case network.ShapeJSONObject:
		var obj map[string]any
		obj, err = p.client.RequestJSONObject(ctx, req)
		result.Items = len(obj)
	case network.ShapeJSONArray:
		var arr []any
		arr, err = p.client.RequestJSONArray(ctx, req)
		result.Items = len(arr)
	case network.ShapeDecodable:
		var raw json.RawMessage
		raw, err = network.Decode[json.RawMessage](ctx, p.client, req)
		result.Bytes = len(raw)
	default:
		var data []byte
		data, err = p.client.RequestData(ctx, req)
		result.Bytes = len(data)
	}
	result.Duration = time.Since(start)
	result.FinishedAt = time.Now()
	result.Outcome = network.Kind(err)

	var netErr *network.Error
	if errors.As(err, &netErr) {
		result.StatusCode = netErr.StatusCode
	}
	if err != nil {
		result.Error = err.Error()
		logger.Warn("probe failed", "outcome", result.Outcome, "error", err, "duration", result.Duration)
	} else {
		logger.Info("probe succeeded", "bytes", result.Bytes, "items", result.Items, "duration", result.Duration)
	}
	return result
}
