package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/di"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
	"github.com/StrathCole/fee-oracle/pkg/server/sources"
	"github.com/StrathCole/fee-oracle/pkg/version"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Path to an optional .env file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	checkOnly  = flag.Bool("check", false, "Validate the configuration and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("fee-oracle version %s\n", version.Version)
		os.Exit(0)
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	// Load validates as well.
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *checkOnly {
		fmt.Printf("Configuration %s is valid (%d upstreams enabled, source kinds: %v)\n",
			*configFile, len(cfg.EnabledUpstreams()), sources.List())
		os.Exit(0)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting fee-oracle",
		"version", version.Version,
		"interval", cfg.Aggregation.Interval,
		"hot_store", cfg.Storage.Hot,
		"durable_store", cfg.Storage.Durable)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := di.InitializeApp(ctx, di.ConfigPath(*configFile), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Shutdown with error", "error", err)
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Application error", "error", err)
			cleanup()
			os.Exit(1)
		}
	}

	logger.Info("Shutdown complete")
}
