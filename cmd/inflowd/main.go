// Command inflowd runs the dataset intake pipeline as a long-lived daemon:
// it scans configured drop folders, registers, processes, and evaluates
// incoming datasets, and hands finished ones off to their downstream
// inboxes until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"inflow/internal/config"
	"inflow/internal/logging"
	"inflow/internal/pipeline"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger.Info("loaded configuration", logging.String("path", path))

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("construct pipeline", logging.Error(err))
		log.Fatalf("construct pipeline: %v", err)
	}

	if err := p.Start(ctx); err != nil {
		logger.Error("start pipeline", logging.Error(err))
		log.Fatalf("start pipeline: %v", err)
	}

	<-ctx.Done()
	logger.Info("inflowd shutting down")
	p.Stop()
}
