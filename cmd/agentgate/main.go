// Package main is the entry point for the agentgate edge gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ensembleai/agentgate/internal/config"
	"github.com/ensembleai/agentgate/internal/gateway"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/secrets"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "agentgate: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AGENTGATE_CONFIG_PATH", "configs/agentgate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", os.Getenv("AGENTGATE_LOG_LEVEL"),
		"Log level override (debug, info, warn, error)")
	logFormat := flag.String("log-format", os.Getenv("AGENTGATE_LOG_FORMAT"),
		"Log format override (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

func printVersion() {
	fmt.Printf("agentgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func run(flags cliFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := secrets.NewResolver()

	app := &application{}
	watcher, err := config.NewWatcher(flags.configPath, app.reload,
		config.WithResolver(resolver))
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	cfg := watcher.Last()

	logger, err := initLogger(cfg, flags)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	app.setLogger(logger)

	gw, res, err := gateway.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}
	app.swap(gw, res)
	defer func() { _ = app.close() }()

	srv := gateway.NewServer(cfg, app, logger)

	logger.Info("agentgate starting",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("address", cfg.Server.Address))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down",
			observability.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("agentgate stopped")
	return nil
}

func initLogger(cfg *config.Config, flags cliFlags) (observability.Logger, error) {
	lc := observability.DefaultLogConfig()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		lc.Output = cfg.Log.Output
	}
	if flags.logLevel != "" {
		lc.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		lc.Format = flags.logFormat
	}
	return observability.NewLogger(lc)
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
