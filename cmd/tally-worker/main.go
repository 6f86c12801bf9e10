package main

import (
	"context"
	"os"
	"time"

	"tally/internal/amqp"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	m := metrics.New()

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the snapshot worker")
		os.Exit(1)
	}
	if cfg.SaveMode != config.SaveModeQueue {
		logger.Warn("SAVE_MODE is not queue; the API will not publish snapshots", "save_mode", cfg.SaveMode)
	}

	logger.Info("Starting tally-worker",
		log.FieldBackend, cfg.DataBackend,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	store := cli.OpenStore(context.Background(), logger, cfg)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to connect to snapshot queue", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Warn("Store cleanup error", log.FieldError, err)
			}
		}
	})

	w := worker.NewSnapshotWorker(client, store.Store, logger, m)
	if err := w.Run(ctx); err != nil {
		logger.Error("Snapshot worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	<-done

	s := w.Stats()
	logger.Info("Worker stopped",
		"written", s.Written,
		"skipped", s.Skipped,
		"failed", s.Failed)
}
