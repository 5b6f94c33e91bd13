// Package main implements the readport collector. It connects to every
// configured instrument, parses the lines it sends and stores them in
// batched files until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/readport/config"
	"github.com/c360/readport/health"
	"github.com/c360/readport/metric"
	"github.com/c360/readport/pipeline"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "readport"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	pipelineCfgs, err := cfg.Pipelines()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer := setupLogger(cfg.Logging)
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath, "devices", len(pipelineCfgs))
		return nil
	}

	slog.Info("Starting readport",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"devices", len(pipelineCfgs))

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Port > 0 {
		registry = metric.NewMetricsRegistry()
		registry.CoreMetrics().RecordBuildInfo(Version)
	}

	pipelines := make([]*pipeline.Pipeline, 0, len(pipelineCfgs))
	for _, pc := range pipelineCfgs {
		p, err := pipeline.New(pc, pipeline.Deps{
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("device %s: %w", pc.Device, err)
		}
		pipelines = append(pipelines, p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if registry != nil {
		server, err := startMetricsServer(ctx, cfg.Metrics, registry, pipelines)
		if err != nil {
			return err
		}
		defer func() {
			if err := server.Stop(5 * time.Second); err != nil {
				slog.Warn("Metrics server did not stop cleanly", "error", err)
			}
		}()
	}

	if err := runPipelines(ctx, pipelines, cfg.ShutdownTimeoutOrDefault()); err != nil {
		return err
	}

	slog.Info("readport shutdown complete")
	return nil
}

// loadConfig loads the configuration file and applies command-line overrides
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	return cfg, nil
}

// runPipelines runs every device until ctx is cancelled. A device that gives
// up does not stop the others; its error is returned once all have finished.
func runPipelines(ctx context.Context, pipelines []*pipeline.Pipeline, shutdownTimeout time.Duration) error {
	var g errgroup.Group
	for _, p := range pipelines {
		g.Go(func() error {
			if err := p.Run(ctx, shutdownTimeout); err != nil {
				slog.Error("Device stopped", "device", p.Meta().Name, "error", err)
				return fmt.Errorf("device %s: %w", p.Meta().Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func startMetricsServer(
	ctx context.Context,
	cfg config.MetricsConfig,
	registry *metric.MetricsRegistry,
	pipelines []*pipeline.Pipeline,
) (*metric.Server, error) {
	monitor := health.NewMonitor(appName)
	for _, p := range pipelines {
		monitor.Add(p)
	}

	server := metric.NewServer(cfg.Port, cfg.Path, registry, monitor)
	errc := make(chan error, 1)
	if err := server.Start(errc); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	go func() {
		select {
		case err := <-errc:
			slog.Error("Metrics server failed", "error", err)
		case <-ctx.Done():
		}
	}()

	slog.Info("Metrics server started", "address", server.Address())
	return server, nil
}
