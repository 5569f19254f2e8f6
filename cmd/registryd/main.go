// Command registryd serves the aircraft registry API and keeps the dataset
// fresh on a schedule.
//
// Configuration comes from the environment (a .env file is honored):
//
//	DATABASE_DRIVER           sqlite or postgres (default: sqlite)
//	DATABASE_URL              sqlite file path or postgres connection string
//	DATASET_URL               dataset archive URL (default: FAA releasable aircraft)
//	PORT                      HTTP port (default: 8080)
//	REFRESH_SCHEDULE_ENABLED  run the periodic refresh loop (default: true)
//	REFRESH_INTERVAL          time between scheduled refreshes (default: 24h)
//	REFRESH_ON_STARTUP        refresh immediately when the scheduler starts
//	CLICKHOUSE_HOST           enable refresh telemetry when set
//	NATS_URL                  enable dataset-refreshed events when set
//
// API Endpoints:
//
//	GET  /api/v1/health
//	GET  /api/v1/airplanes
//	GET  /api/v1/airplanes/refresh-status
//	POST /api/v1/airplanes/refresh
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aircraft_registry/internal/api"
	"aircraft_registry/internal/config"
	"aircraft_registry/internal/events"
	"aircraft_registry/internal/refresh"
	"aircraft_registry/internal/search"
	"aircraft_registry/internal/store"
	"aircraft_registry/internal/telemetry"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Driver: cfg.DatabaseDriver, URL: cfg.DatabaseURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		os.Exit(1)
	}

	opts := refresh.Options{Logger: logger}

	if cfg.ClickHouseHost != "" {
		sink, err := telemetry.OpenClickHouse(ctx, telemetry.ClickHouseConfig{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer sink.Close()
		opts.Sink = sink
	}

	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to NATS: %v\n", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts.Events = pub
	}

	svc := refresh.NewService(st, cfg.DatasetURL, opts)

	if cfg.SchedulerEnabled {
		sched := refresh.NewScheduler(svc, cfg.RefreshInterval, cfg.RefreshOnStartup, logger)
		sched.Start()
		defer sched.Stop()
	}

	server := api.NewServer(search.New(st, logger), svc, api.Config{Port: cfg.Port}, logger)

	// Shut down on SIGINT/SIGTERM so the deferred cleanup runs.
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	case sig := <-sigCh:
		logger.Printf("[registryd] received %s, shutting down", sig)
	}
}

