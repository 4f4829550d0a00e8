// Package server provides the HTTP daemon for netactivity.
//
// The server sweeps the configured probe targets through a tracking network
// client and exposes the tracker's activity status over HTTP.
//
// # Endpoints
//
//   - GET /health - Liveness check, returns "ok" with the activity status in a header
//   - GET /api/status - Activity status, in-flight count, build, next run and probe results
//   - GET /api/status/stream - Server-Sent Events, one "status" event per published value
//   - POST /api/probe - Starts a probe sweep in the background
//   - GET /api/history - Completed sweeps, most recent first
//   - GET /api/config - Current configuration as YAML, secrets redacted
//   - POST /api/reload - Reloads configuration from disk
//   - GET /metrics - Prometheus metrics (scrape mode only)
//
// # Reloading
//
// Probe targets and the log level are swapped on reload. The listener, the
// metrics mode and the schedule are fixed for the lifetime of the process.
//
// # Example
//
//	srv, err := server.New("/etc/netactivity/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/buildinfo"
	"github.com/nomis52/netactivity/config"
	"github.com/nomis52/netactivity/logging"
	"github.com/nomis52/netactivity/metrics"
	"github.com/nomis52/netactivity/network"
	"github.com/nomis52/netactivity/probe"
	"github.com/nomis52/netactivity/server/cron"
	"github.com/nomis52/netactivity/server/handlers"
	"github.com/nomis52/netactivity/server/types"
	"github.com/nomis52/netactivity/tracker"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the netactivity HTTP daemon.
type Server struct {
	addr        string
	configPath  string
	config      atomic.Pointer[config.Config]
	logger      *logging.Logger
	properties  types.ServerProperties
	scrape      *metrics.ScrapeRegistry
	push        *metrics.PushRegistry
	client      *tracker.Client
	prober      *probe.Prober
	cronTrigger *cron.CronTrigger
	certLoader  *CertLoader
	listener    net.Listener
	httpServer  *http.Server
	closeOnce   sync.Once
	closeErr    error
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the configured listen address.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithListener serves on an existing listener instead of opening addr.
func WithListener(l net.Listener) Option {
	return func(s *Server) error {
		s.listener = l
		return nil
	}
}

// New creates a new Server from the config file at configPath.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	s := &Server{
		addr:       cfg.Listener.Addr,
		configPath: configPath,
		logger:     logger,
		properties: types.ServerProperties{
			Build:     buildinfo.Get(),
			StartedAt: time.Now(),
			Hostname:  hostname,
		},
	}
	s.config.Store(cfg)

	if err := s.init(cfg); err != nil {
		s.Close()
		return nil, err
	}
	s.properties.MetricsMode = types.MetricsModeScrape
	if s.push != nil {
		s.properties.MetricsMode = types.MetricsModePush
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) init(cfg *config.Config) error {
	var registry metrics.Registry
	if cfg.Monitoring.PushEnabled() {
		s.push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.PushURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.Job,
			Instance: cfg.Monitoring.Instance,
			Logger:   s.logger.Logger,
		})
		registry = s.push
	} else {
		scrape, err := metrics.NewScrapeRegistry(cfg.Monitoring.MetricsPrefix)
		if err != nil {
			return fmt.Errorf("creating metrics registry: %w", err)
		}
		s.scrape = scrape
		registry = scrape
	}

	var netOpts []network.Option
	netOpts = append(netOpts, network.WithLogger(s.logger.Logger))
	if cfg.Probes.UserAgent != "" {
		netOpts = append(netOpts, network.WithUserAgent(cfg.Probes.UserAgent))
	}
	client, err := tracker.New(network.NewHTTPClient(netOpts...),
		tracker.WithLogger(s.logger.Logger),
		tracker.WithMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("creating tracking client: %w", err)
	}
	s.client = client

	var store probe.Store = probe.NewMemoryStore(cfg.Probes.History)
	if cfg.Probes.StateDir != "" {
		disk, err := probe.NewDiskStore(cfg.Probes.StateDir, cfg.Probes.History, s.logger.Logger)
		if err != nil {
			return fmt.Errorf("creating sweep store: %w", err)
		}
		store = disk
	}
	s.prober = probe.New(client, cfg.Probes.Targets,
		probe.WithConcurrency(cfg.Probes.Concurrency),
		probe.WithLogger(s.logger.Logger),
		probe.WithStore(store),
	)

	if cfg.Probes.Schedule != "" {
		trigger, err := cron.NewCronTrigger(cfg.Probes.Schedule, s.prober, s.logger.Logger)
		if err != nil {
			return fmt.Errorf("creating cron trigger: %w", err)
		}
		s.cronTrigger = trigger
	}

	if cfg.Listener.TLSEnabled() {
		loader, err := NewCertLoader(cfg.Listener.TLSCert, cfg.Listener.TLSKey, s.logger.Logger)
		if err != nil {
			return err
		}
		s.certLoader = loader
	}
	return nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger.Logger
}

// Reload reads the config from disk and applies the probe targets and log
// level. Settings that need a restart are reported in the log.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}

	old := s.config.Swap(cfg)
	s.prober.SetTargets(cfg.Probes.Targets)

	if old.Listener != cfg.Listener || old.Monitoring != cfg.Monitoring ||
		old.Probes.Schedule != cfg.Probes.Schedule || old.Probes.Concurrency != cfg.Probes.Concurrency {
		s.logger.Warn("some configuration changes take effect after a restart")
	}
	s.logger.Info("configuration loaded", "config_path", s.configPath, "targets", len(cfg.Probes.Targets))
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.config.Load()
}

// Client returns the tracking network client.
func (s *Server) Client() *tracker.Client {
	return s.client
}

// Properties returns metadata about this server instance.
func (s *Server) Properties() types.ServerProperties {
	return s.properties
}

// Status returns the current activity status.
func (s *Server) Status() activity.Status {
	return s.client.Status()
}

// InFlight returns the number of tracked requests in flight.
func (s *Server) InFlight() int {
	return s.client.InFlight()
}

// Subscribe returns a subscription to the activity status.
func (s *Server) Subscribe() *activity.Subscription {
	return s.client.Subscribe()
}

// Sweep returns the current or last sweep status.
func (s *Server) Sweep() probe.SweepStatus {
	return s.prober.Status()
}

// Results returns the latest probe results.
func (s *Server) Results() []probe.Result {
	return s.prober.Results()
}

// History returns completed sweeps.
func (s *Server) History() []probe.SweepRecord {
	return s.prober.History()
}

// Start begins a background sweep.
func (s *Server) Start(ctx context.Context) error {
	return s.prober.Start(ctx)
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cronTrigger == nil {
		return nil
	}
	next := s.cronTrigger.NextRun()
	return &next
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If a cron trigger is configured, it will be started automatically.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	listener := s.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.addr, err)
		}
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = s.certLoader.TLSConfig()
	}

	// Start cron trigger if configured
	if s.cronTrigger != nil {
		s.logger.Info("starting cron trigger",
			"spec", s.cronTrigger.Spec(),
			"next_run", s.cronTrigger.NextRun(),
		)
		s.cronTrigger.Start(ctx)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", listener.Addr().String(),
			"tls", s.certLoader != nil,
			"config_path", s.configPath,
		)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ServeTLS(listener, "", "")
		} else {
			err = s.httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Close flushes pushed metrics and closes the log output. Run closes the
// server when it returns.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.push != nil {
			errs = append(errs, s.push.Close())
		}
		errs = append(errs, s.logger.Close())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", handlers.NewHealthHandler(s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/status/stream", handlers.NewStatusStreamHandler(s.logger.Logger, s))
	mux.Handle("POST /api/probe", handlers.NewProbeHandler(s.logger.Logger, s))
	mux.Handle("GET /api/history", handlers.NewHistoryHandler(s))
	mux.Handle("GET /api/config", handlers.NewConfigHandler(s))
	mux.Handle("POST /api/reload", handlers.NewReloadHandler(s.logger.Logger, s))

	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape.Handler())
	}
}
