// Command meetsim runs text-only meetings between roster agents from the
// terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/capitalize-ai/meeting-agents/internal/config"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "meetsim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Debug runs are read in a terminal, so they get the console encoder.
	newLogger := func() (*logger.Logger, error) { return logger.New(cfg.Log.Level) }
	if cfg.Log.Level == "debug" {
		newLogger = logger.NewDevelopment
	}
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := &dependencies{Config: cfg, Logger: log, Out: os.Stdout}
	return newRootCmd(deps).ExecuteContext(ctx)
}
