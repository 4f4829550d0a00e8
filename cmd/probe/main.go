package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/buildinfo"
	"github.com/nomis52/netactivity/config"
	"github.com/nomis52/netactivity/logging"
	"github.com/nomis52/netactivity/metrics"
	"github.com/nomis52/netactivity/network"
	"github.com/nomis52/netactivity/probe"
	"github.com/nomis52/netactivity/tracker"
)

const watchDrainTimeout = 5 * time.Second

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
	Watch       bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	// Handle version request
	if args.ShowVersion {
		showVersion()
		return nil
	}

	// Validate required config path
	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Handle validation-only request
	if args.Validate {
		fmt.Printf("Configuration validation successful: %s (%d targets)\n", args.ConfigPath, len(cfg.Probes.Targets))
		return nil
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("probe started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
		"targets", len(cfg.Probes.Targets),
	)

	var trackerOpts []tracker.Option
	trackerOpts = append(trackerOpts, tracker.WithLogger(logger.Logger))
	if cfg.Monitoring.PushEnabled() {
		registry := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.PushURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.Job,
			Instance: cfg.Monitoring.Instance,
			Logger:   logger.Logger,
		})
		defer registry.Close()
		trackerOpts = append(trackerOpts, tracker.WithMetrics(registry))
	}

	var netOpts []network.Option
	netOpts = append(netOpts, network.WithLogger(logger.Logger))
	if cfg.Probes.UserAgent != "" {
		netOpts = append(netOpts, network.WithUserAgent(cfg.Probes.UserAgent))
	}
	client, err := tracker.New(network.NewHTTPClient(netOpts...), trackerOpts...)
	if err != nil {
		return err
	}

	// Each target registers and deregisters once, after the replayed status.
	var watched <-chan struct{}
	if args.Watch {
		sub := client.Subscribe()
		defer sub.Close()
		watched = watch(os.Stderr, sub, client.InFlight, 1+2*len(cfg.Probes.Targets))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prober := probe.New(client, cfg.Probes.Targets,
		probe.WithConcurrency(cfg.Probes.Concurrency),
		probe.WithLogger(logger.Logger),
	)
	err = prober.Sweep(ctx)
	if watched != nil {
		select {
		case <-watched:
		case <-time.After(watchDrainTimeout):
			logger.Warn("activity watcher did not drain")
		}
	}
	printResults(os.Stdout, prober.Results())
	return err
}

// watch prints every status from sub until events have been printed, then
// closes the returned channel.
func watch(w io.Writer, sub *activity.Subscription, inFlight func() int, events int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for seen := 0; seen < events; seen++ {
			status, ok := <-sub.Updates()
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s activity=%s in_flight=%d\n",
				time.Now().Format(time.TimeOnly), status, inFlight())
		}
	}()
	return done
}

func printResults(w io.Writer, results []probe.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSHAPE\tOUTCOME\tSIZE\tDURATION\tERROR")
	for _, r := range results {
		size := r.Bytes
		if r.Shape == network.ShapeJSONObject || r.Shape == network.ShapeJSONArray {
			size = r.Items
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Target, r.Shape, r.Outcome, size, r.Duration.Round(time.Millisecond), r.Error)
	}
	tw.Flush()
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("netactivity probe %s\n", props.Version)
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
	fmt.Printf("Go: %s\n", props.GoVersion)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	watch := flag.Bool("watch", false, "Print activity status changes to stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nRuns one probe sweep over the configured targets and prints the results\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/netactivity/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config config.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion || *versionShort,
		Validate:    *validate,
		Watch:       *watch,
	}
}
