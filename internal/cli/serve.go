package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/chart"
	"github.com/tobert/microdash/internal/filereader"
	"github.com/tobert/microdash/internal/otlpreceiver"
	"github.com/tobert/microdash/internal/storage"
	"github.com/tobert/microdash/internal/telemetry"
	"github.com/tobert/microdash/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the web dashboard and any local span sources.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web dashboard",
		Description: `Serves the dashboard on http://127.0.0.1:8082 by default, reading from the
platform API at --api-url. Spans received over OTLP (--otlp) or read from
collector file exporter output (--trace-dir, --otel-config) are merged into
each service's traces.`,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "Web UI bind address",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "Web UI port",
			},
			&cli.StringFlag{
				Name:  "poll-interval",
				Usage: "Stats refresh period of live views (e.g. 5s)",
			},
			&cli.StringFlag{
				Name:  "stats-window",
				Usage: "How far back stats charts reach (e.g. 8m)",
			},
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Trace timelines per page",
			},
			&cli.StringFlag{
				Name:  "distribution",
				Usage: "Chart x-axis spacing: series or linear",
			},
			&cli.BoolFlag{
				Name:  "otlp",
				Usage: "Accept OTLP trace exports over gRPC",
			},
			&cli.StringFlag{
				Name:  "otlp-host",
				Usage: "OTLP server bind address",
			},
			&cli.IntFlag{
				Name:  "otlp-port",
				Usage: "OTLP server port (0 for ephemeral)",
			},
			&cli.StringSliceFlag{
				Name:  "trace-dir",
				Usage: "Directory holding traces/*.jsonl from a collector file exporter (repeatable)",
			},
			&cli.StringFlag{
				Name:  "otel-config",
				Usage: "Collector config to discover trace directories from its file exporters",
			},
			&cli.BoolFlag{
				Name:  "active-only",
				Usage: "Only read traces.jsonl, skipping rotated archives",
			},
			&cli.IntFlag{
				Name:  "trace-buffer-size",
				Usage: "Number of local spans to keep",
			},
		),
		Action: runServe,
	}
}

// applyServeFlags copies explicitly set serve flags onto overlay. Flags a
// command does not define are never set.
func applyServeFlags(cmd *cli.Command, overlay *Config) {
	if cmd.IsSet("http-host") {
		overlay.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		overlay.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("poll-interval") {
		overlay.PollInterval = cmd.String("poll-interval")
	}
	if cmd.IsSet("stats-window") {
		overlay.StatsWindow = cmd.String("stats-window")
	}
	if cmd.IsSet("page-size") {
		overlay.PageSize = cmd.Int("page-size")
	}
	if cmd.IsSet("distribution") {
		overlay.Distribution = cmd.String("distribution")
	}
	if cmd.IsSet("otlp") {
		overlay.OTLPEnabled = cmd.Bool("otlp")
	}
	if cmd.IsSet("otlp-host") {
		overlay.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("otlp-port") {
		overlay.OTLPPort = cmd.Int("otlp-port")
	}
	if cmd.IsSet("trace-dir") {
		overlay.TraceDirs = cmd.StringSlice("trace-dir")
	}
	if cmd.IsSet("otel-config") {
		overlay.OtelConfig = cmd.String("otel-config")
	}
	if cmd.IsSet("active-only") {
		overlay.ActiveOnly = cmd.Bool("active-only")
	}
	if cmd.IsSet("trace-buffer-size") {
		overlay.TraceBufferSize = cmd.Int("trace-buffer-size")
	}
}

// traceDirs returns the configured trace directories plus any discovered
// from the collector config, without duplicates.
func traceDirs(cfg *Config) ([]string, error) {
	dirs := append([]string(nil), cfg.TraceDirs...)
	if cfg.OtelConfig != "" {
		found, err := ParseOtelConfig(cfg.OtelConfig)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, found...)
	}

	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

// newLocalSources creates the file sources for dirs and, when enabled, the
// OTLP server, all feeding store. Nothing is started. File sources are
// created first and the OTLP listener last, so an error leaves nothing open.
func newLocalSources(cfg *Config, dirs []string, store *storage.SpanStore, onReceive func(int)) (*otlpreceiver.Server, []*filereader.FileSource, error) {
	sources := make([]*filereader.FileSource, 0, len(dirs))
	for _, dir := range dirs {
		source, err := filereader.New(filereader.Config{
			Directory:  dir,
			Verbose:    cfg.Verbose,
			ActiveOnly: cfg.ActiveOnly,
			OnReceive:  onReceive,
		}, store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file source: %w", err)
		}
		sources = append(sources, source)
	}

	if !cfg.OTLPEnabled {
		return nil, sources, nil
	}
	otlpServer, err := otlpreceiver.NewServer(otlpreceiver.Config{
		Host:      cfg.OTLPHost,
		Port:      cfg.OTLPPort,
		OnReceive: onReceive,
		Verbose:   cfg.Verbose,
	}, store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP server: %w", err)
	}
	return otlpServer, sources, nil
}

// runServe is the action handler for the serve command.
// It wires together the platform client, local span sources and the web UI,
// and runs them until SIGINT/SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pollEvery, _ := cfg.PollEvery()
	window, _ := cfg.Window()

	dirs, err := traceDirs(cfg)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Web UI: %s:%d\n", cfg.HTTPHost, cfg.HTTPPort)
		log.Printf("  Poll interval: %s, stats window: %s\n", cfg.PollInterval, cfg.StatsWindow)
		log.Printf("  OTLP receiver: %v (%s:%d)\n", cfg.OTLPEnabled, cfg.OTLPHost, cfg.OTLPPort)
		log.Printf("  Trace dirs: %v\n", dirs)
		log.Println()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// 1. Local span sources share one store merged into Trace results.
	if cfg.OTLPEnabled || len(dirs) > 0 {
		store := storage.NewSpanStore(cfg.TraceBufferSize)
		client = backend.WithLocalSpans(client, store)

		if cfg.Verbose {
			log.Printf("✅ Created span store (capacity: %d spans)\n", store.Stats().Capacity)
		}

		otlpServer, sources, err := newLocalSources(cfg, dirs, store, metrics.SpansReceived)
		if err != nil {
			return err
		}
		if otlpServer != nil {
			log.Printf("🌐 OTLP gRPC server listening on %s\n", otlpServer.Endpoint())
			if cfg.Verbose {
				log.Printf("   Services can send traces with: OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", otlpServer.Endpoint())
			}
			g.Go(func() error { return otlpServer.Serve(gctx) })
		}

		for _, source := range sources {
			log.Printf("📁 Reading traces from %s\n", source.Directory())
			g.Go(func() error { return source.Run(gctx) })
		}
	}

	// 2. Web UI
	web := webui.New(telemetry.Instrument(client, metrics), webui.Options{
		PollInterval: pollEvery,
		Window:       window,
		PageSize:     cfg.PageSize,
		Distribution: chart.Distribution(cfg.Distribution),
		Metrics:      metrics,
		Gatherer:     reg,
	})
	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	log.Printf("🌐 Dashboard on http://%s (platform API %s)\n", addr, cfg.APIURL)
	g.Go(func() error { return web.ListenAndServe(gctx, addr) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	if cfg.Verbose {
		log.Println("👋 Shut down cleanly")
	}
	return nil
}
