// Runlogd is the run-log routing daemon.
//
// It accepts log events over HTTP, routes each one to a per-thread channel
// and persists them in order through the configured sink.
//
// Configuration is loaded from an optional YAML or TOML file layered under
// RUNLOGD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (log sink, port 9191)
//	runlogd
//
//	# Persist to SQLite and reload appender settings when the file changes
//	runlogd -config /etc/runlogd/config.yaml
//
//	# Configure via environment
//	RUNLOGD_SINK_KIND=nats RUNLOGD_SINK_URL=nats://localhost:4222 runlogd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/runlogd/internal/appender"
	"github.com/fyrsmithlabs/runlogd/internal/config"
	api "github.com/fyrsmithlabs/runlogd/internal/http"
	"github.com/fyrsmithlabs/runlogd/internal/logging"
	"github.com/fyrsmithlabs/runlogd/internal/registry"
	"github.com/fyrsmithlabs/runlogd/internal/sink"
	"github.com/fyrsmithlabs/runlogd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  runlogd [-config file]   Start the runlogd daemon\n")
			fmt.Fprintf(os.Stderr, "  runlogd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("runlogd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// loadConfig reads configPath when given, otherwise the environment only.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithFile(configPath)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run starts runlogd and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize telemetry and logger
//  3. Open the sink
//  4. Build the registry and appender
//  5. Start the HTTP control server and, with a config file, the reloader
//
// On cancellation every channel is drained within the shutdown timeout
// before the sink and telemetry are closed.
func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.NewConfigFromObservability(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	appLogger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := appLogger.Underlying()
	defer func() {
		_ = appLogger.Sync()
	}()

	logger.Info("starting runlogd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("sink", cfg.Sink.Kind),
		zap.Bool("parallel", cfg.Appender.Parallel),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	out, err := sink.New(ctx, cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("failed to open sink: %w", err)
	}

	reg := registry.New(cfg.Appender, out,
		registry.WithLogger(logger),
		registry.WithTracer(tel.Tracer("runlogd/channel")),
	)
	app := appender.New(reg, logger)

	srv, err := api.NewServer(app, logger,
		&api.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		api.WithTelemetry(tel),
		api.WithMetrics(api.NewHTTPMetricsWithMeter(tel.Meter("runlogd/http"), logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if configPath != "" {
		go watchConfig(ctx, configPath, reg, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	return shutdown(cfg, srv, app, out, tel, logger, serveErr)
}

// watchConfig applies appender settings from reloaded config files. Only the
// appender section is live; server and sink changes need a restart.
func watchConfig(ctx context.Context, configPath string, reg *registry.Registry, logger *zap.Logger) {
	err := config.Watch(ctx, configPath, logger, func(c *config.Config) {
		if err := reg.SetConfiguration(c.Appender); err != nil {
			logger.Warn("ignoring reloaded appender configuration", zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("config watcher stopped", zap.Error(err))
	}
}

func shutdown(cfg *config.Config, srv *api.Server, app *appender.Appender, out sink.Sink,
	tel *telemetry.Telemetry, logger *zap.Logger, serveErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	errs := []error{serveErr}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := app.Close(ctx, true); err != nil {
		errs = append(errs, fmt.Errorf("draining channels: %w", err))
	}
	if err := out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sink: %w", err))
	}
	if err := tel.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	err := errors.Join(errs...)
	if err == nil {
		logger.Info("runlogd shutdown complete")
	}
	return err
}
