package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/corpuswatch"
	"github.com/jpalmerr/corpuswatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the corpuswatch dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the corpuswatch dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Open a live view on every configured corpus
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  corpuswatch serve -c config.yaml
  CORPUSWATCH_CONFIG=/etc/corpuswatch/config.yaml corpuswatch serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	configFile, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"corpora", len(cfg.Corpora),
		"groups", len(cfg.Groups),
		"targets", cfg.TargetCount(),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
		"backend", cfg.Backend.BaseURL,
	)

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}

	if len(targets) == 0 {
		return fmt.Errorf("no corpora configured")
	}

	opts := config.WatcherOptions(cfg)
	opts = append(opts,
		corpuswatch.WithTargets(targets...),
		corpuswatch.WithLogger(logger),
	)

	w, err := corpuswatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start blocks until the context is cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
