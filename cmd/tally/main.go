package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	m := metrics.New()

	logger.Info("Starting tally server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"save_mode", cfg.SaveMode)

	store := cli.OpenStore(context.Background(), logger, cfg)
	saver, closeSaver := cli.OpenSaver(logger, cfg, store.Store)

	dispatcher := services.NewSaveDispatcher(saver, services.DefaultSaveDispatcherConfig(), logger, m)
	if err := dispatcher.Start(context.Background()); err != nil {
		logger.Error("Failed to start save dispatcher", log.FieldError, err)
		os.Exit(1)
	}

	tracker := cli.NewTracker(cfg, store.Store, dispatcher, logger, m)
	if rep, err := tracker.Start(context.Background()); err != nil {
		// Serve anyway: the tracker is empty but usable and /api/reload can retry.
		logger.Error("Initial load failed, starting empty", log.FieldError, err)
	} else {
		logger.Info("Initial maintenance complete",
			"series", rep.Series,
			log.FieldGenerated, rep.Generated)
	}

	srv := apphttp.NewServer(":"+cfg.Port, tracker, apphttp.Options{
		Logger:  logger,
		Metrics: m,
		Flush:   dispatcher.Flush,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
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

	go maintainPeriodically(ctx, logger, tracker, cfg.MaintenanceInterval)
	go reportSaveErrors(ctx, logger, dispatcher)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	<-done
	logger.Info("Server stopped gracefully")
}

// maintainPeriodically keeps series extended while the process stays up
// across a month boundary.
func maintainPeriodically(ctx context.Context, logger *log.Logger, tracker *services.Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep := tracker.Maintain(ctx)
			logger.Debug("Periodic maintenance",
				"series", rep.Series,
				log.FieldGenerated, rep.Generated,
				"next_check", time.Now().Add(interval).Format("15:04:05"))
		}
	}
}

func reportSaveErrors(ctx context.Context, logger *log.Logger, d *services.SaveDispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.Errors():
			logger.Warn("Snapshot not saved", log.FieldRevision, e.Revision, log.FieldError, e.Err)
		}
	}
}
