// Package config loads the YAML configuration of the netactivity daemon.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/netactivity/logging"
	"github.com/nomis52/netactivity/network"
)

const (
	defaultListenAddr = ":8080"

	// Default monitoring settings
	defaultMetricsPrefix = "netactivity"
	defaultJobName       = "netactivity"

	// Default probe settings
	defaultConcurrency = 4
	defaultHistory     = 100
	defaultProbeMethod = "GET"
	defaultTimeout     = 10 * time.Second

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the complete daemon configuration
type Config struct {
	Listener   ListenerConfig   `yaml:"listener"`
	Logging    logging.Config   `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Probes     ProbesConfig     `yaml:"probes"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS. The files are re-read when they change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled reports whether the listener serves HTTPS.
func (l ListenerConfig) TLSEnabled() bool {
	return l.TLSCert != "" || l.TLSKey != ""
}

// MonitoringConfig holds metrics settings. Metrics are pushed to the remote
// write endpoint under PushURL (for example http://victoriametrics:8428) when
// it is set and served on /metrics otherwise.
type MonitoringConfig struct {
	PushURL       string `yaml:"push_url"`
	MetricsPrefix string `yaml:"metrics_prefix"`
	Job           string `yaml:"job"`
	Instance      string `yaml:"instance"`
}

// ProbesConfig defines the HTTP targets swept through the tracker.
type ProbesConfig struct {
	// Schedule is a 5 field cron spec. Empty disables scheduled sweeps.
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
	UserAgent   string `yaml:"user_agent"`
	// StateDir keeps sweep history on disk. Empty keeps it in memory.
	StateDir string `yaml:"state_dir"`
	// History is the number of sweeps kept.
	History int            `yaml:"history"`
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig is a single probe target.
type TargetConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Shape   network.Shape     `yaml:"shape"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// PushEnabled reports whether metrics are pushed rather than scraped.
func (m MonitoringConfig) PushEnabled() bool {
	return m.PushURL != ""
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Listener.TLSEnabled() && (c.Listener.TLSCert == "" || c.Listener.TLSKey == "") {
		return fmt.Errorf("%w: tls_cert and tls_key must be set together", ErrInvalidConfig)
	}
	if c.Probes.Concurrency <= 0 {
		return fmt.Errorf("%w: probe concurrency must be positive", ErrInvalidConfig)
	}
	if c.Probes.History < 0 {
		return fmt.Errorf("%w: probe history must not be negative", ErrInvalidConfig)
	}
	if c.Monitoring.PushEnabled() {
		if err := validateURL(c.Monitoring.PushURL); err != nil {
			return fmt.Errorf("%w: push_url: %v", ErrInvalidConfig, err)
		}
	}

	seen := make(map[string]bool, len(c.Probes.Targets))
	for i, target := range c.Probes.Targets {
		if target.Name == "" {
			return fmt.Errorf("%w: target %d has no name", ErrInvalidConfig, i)
		}
		if seen[target.Name] {
			return fmt.Errorf("%w: duplicate target %q", ErrInvalidConfig, target.Name)
		}
		seen[target.Name] = true

		if err := validateURL(target.URL); err != nil {
			return fmt.Errorf("%w: target %q: %v", ErrInvalidConfig, target.Name, err)
		}
		if !slices.Contains(network.Shapes(), target.Shape) {
			return fmt.Errorf("%w: target %q: unknown shape %q", ErrInvalidConfig, target.Name, target.Shape)
		}
		if target.Timeout < 0 {
			return fmt.Errorf("%w: target %q: timeout must not be negative", ErrInvalidConfig, target.Name)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q needs a scheme and host", raw)
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.Job == "" {
		c.Monitoring.Job = defaultJobName
	}
	if c.Monitoring.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Monitoring.Instance = host
		}
	}
	if c.Probes.Concurrency == 0 {
		c.Probes.Concurrency = defaultConcurrency
	}
	if c.Probes.History == 0 {
		c.Probes.History = defaultHistory
	}
	for i := range c.Probes.Targets {
		target := &c.Probes.Targets[i]
		if target.Shape == "" {
			target.Shape = network.ShapeData
		}
		if target.Method == "" {
			target.Method = defaultProbeMethod
		}
		if target.Timeout == 0 {
			target.Timeout = defaultTimeout
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const redacted = "REDACTED"

// Redacted returns a copy of the config with target header values and the
// push URL's credentials hidden.
func (c *Config) Redacted() *Config {
	out := *c
	out.Probes.Targets = make([]TargetConfig, len(c.Probes.Targets))
	for i, target := range c.Probes.Targets {
		if len(target.Headers) > 0 {
			headers := make(map[string]string, len(target.Headers))
			for k := range target.Headers {
				headers[k] = redacted
			}
			target.Headers = headers
		}
		out.Probes.Targets[i] = target
	}
	if u, err := url.Parse(c.Monitoring.PushURL); err == nil && u.User != nil {
		u.User = url.User(redacted)
		out.Monitoring.PushURL = u.String()
	}
	return &out
}
