package main

import (
	"context"
	"os"
	"time"

	"tally/internal/cli"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	m := metrics.New()

	logger.Info("Starting tally-maintain",
		log.FieldBackend, cfg.DataBackend,
		"interval", cfg.MaintenanceInterval)

	store := cli.OpenStore(context.Background(), logger, cfg)
	saver, closeSaver := cli.OpenSaver(logger, cfg, store.Store)

	dispatcher := services.NewSaveDispatcher(saver, services.DefaultSaveDispatcherConfig(), logger, m)
	if err := dispatcher.Start(context.Background()); err != nil {
		logger.Error("Failed to start save dispatcher", log.FieldError, err)
		os.Exit(1)
	}
	tracker := cli.NewTracker(cfg, store.Store, dispatcher, logger, m)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := dispatcher.Stop(ctx); err != nil {
			logger.Warn("Save dispatcher stop error", log.FieldError, err)
		}
		closeSaver()
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Warn("Store cleanup error", log.FieldError, err)
			}
		}
	})

	ticker := time.NewTicker(cfg.MaintenanceInterval)
	defer ticker.Stop()

	logger.Info("Running initial maintenance...")
	runOnce(ctx, logger, tracker, dispatcher)
	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case now := <-ticker.C:
			runOnce(ctx, logger, tracker, dispatcher)
			logger.Debug("Next maintenance", "next_check", now.Add(cfg.MaintenanceInterval).Format("15:04:05"))
		}
	}
}

// runOnce loads the stored document, extends every series and waits for
// the resulting save, if any. Nothing is saved when the load fails.
func runOnce(ctx context.Context, logger *log.Logger, tracker *services.Tracker, d *services.SaveDispatcher) {
	rep, err := tracker.Reload(ctx)
	if err != nil {
		logger.Error("Maintenance skipped", log.FieldError, err)
		return
	}
	if rep.Generated == 0 {
		logger.Info("Maintenance complete, nothing to generate", "series", rep.Series)
		return
	}
	if err := d.Flush(ctx); err != nil {
		logger.Error("Maintenance save failed", log.FieldError, err, log.FieldGenerated, rep.Generated)
		return
	}
	logger.Info("Maintenance complete",
		"series", rep.Series,
		log.FieldGenerated, rep.Generated)
}
