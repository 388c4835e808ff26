// Satellite observation service entry point
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/api"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/download"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/pipeline"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/publish"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/raster"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/sched"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting observation service",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	raster.Register()

	if err := os.MkdirAll(cfg.Download.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	mongo, err := store.Connect(connectCtx, cfg.Mongo)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongo.Close(ctx)
	}()
	logger.Info("connected to mongo", "database", cfg.Mongo.Database)

	cat, err := catalog.NewClient(cfg.Copernicus)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}
	cat = cat.WithLogger(logger)

	downloads := download.NewManager(cfg.Download, cat, cat.DownloadURL).WithLogger(logger)

	var publisher publish.Publisher = publish.Noop{}
	if cfg.Publish.Enabled {
		publisher = publish.NewNGSI(cfg.Publish, logger)
		logger.Info("NGSI-LD publishing enabled", "base_url", cfg.Publish.BaseURL)
	}

	pipe := pipeline.New(cat, downloads, mongo.Observations(), publisher, pipeline.Options{
		OutputDir: cfg.Download.OutputDir,
		Calibration: raster.Calibration{
			Constant: cfg.Moisture.CalibrationConstant,
			DryDb:    cfg.Moisture.DryDb,
			WetDb:    cfg.Moisture.WetDb,
		},
		MaxCloudCover:    cfg.Sync.MaxCloudCover,
		MaxScenesPerFarm: cfg.Sync.MaxScenesPerFarm,
		NDVILookback:     cfg.Sync.NDVILookback,
		MoistureLookback: cfg.Sync.MoistureLookback,
	}, logger)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Sync.Enabled {
		scheduler := sched.New(jobCtx, logger)
		batch := sched.NewBatch(mongo.Farms(), cfg.Sync.FarmAttempts, cfg.Sync.FarmRetryDelay, logger)

		jobs := []sched.Job{
			{
				Name: "ndvi-sync",
				Spec: cfg.Sync.NDVISchedule,
				Run: func(ctx context.Context) {
					batch.Run(ctx, "ndvi-sync", pipe.SyncFarmNDVI)
				},
			},
			{
				Name: "moisture-sync",
				Spec: cfg.Sync.MoistureSchedule,
				Run: func(ctx context.Context) {
					batch.Run(ctx, "moisture-sync", pipe.SyncFarmMoisture)
				},
			},
		}
		for _, job := range jobs {
			if err := scheduler.Register(job); err != nil {
				return fmt.Errorf("failed to register job %s: %w", job.Name, err)
			}
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("sync scheduler started",
			"ndvi_schedule", cfg.Sync.NDVISchedule,
			"moisture_schedule", cfg.Sync.MoistureSchedule,
		)
	}

	handlers := api.NewHandlers(pipe, mongo.Observations(), logger)
	router := api.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	cancelJobs()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
