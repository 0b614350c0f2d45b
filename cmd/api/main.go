package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/api"
	"github.com/dvloznov/statement-pipeline/internal/api/handlers"
	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/statement-pipeline/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file (or set CONFIG_FILE env)")
		workers    = flag.Int("workers", 2, "workers for async runs")
	)
	flag.Parse()

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.Server.APIKey == "" {
		log.Warn().Msg("No API key configured - trigger endpoints will reject every request")
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer a.Close()

	// Initialize run infrastructure
	var runStore jobs.RunStore = inmemory.NewStore()
	if a.Warehouse != nil {
		runStore = jobs.NewRecordingStore(runStore, a.Warehouse, logger.Component(log, "runs"))
	}
	runQueue := inmemory.NewQueue(100, *workers, runStore)

	// Start workers in background to process async runs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := runQueue.Start(workerCtx, handlers.Execute(a.Runner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start run workers")
	}

	handler := api.NewHandler(api.Options{
		APIKey:   cfg.Server.APIKey,
		Triggers: handlers.NewTriggersHandler(a.Runner, runStore, runQueue, log),
		Runs:     handlers.NewRunsHandler(runStore, log),
		Metrics:  a.Metrics.Handler(),
		Log:      log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("backend", a.Stores.Backend()).
			Str("bucket", cfg.Storage.Bucket).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop run queue and wait for in-flight runs
	if err := runQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping run queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

// loadConfig reads the configuration and builds the logger it describes.
// On error the returned logger uses the defaults.
func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, logger.New(logger.Config{}), err
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, log, nil
}
