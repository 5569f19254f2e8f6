// Command ingest runs a single dataset refresh and exits.
//
// Usage:
//
//	ingest [options]
//
// Options:
//
//	-driver DRIVER   Database driver: sqlite or postgres (env: DATABASE_DRIVER)
//	-db URL          SQLite file path or postgres connection string (env: DATABASE_URL)
//	-dataset URL     Dataset archive URL (env: DATASET_URL)
//
// Exits non-zero when the refresh fails. The failed run is still recorded in
// the ingestion history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"aircraft_registry/internal/config"
	"aircraft_registry/internal/refresh"
	"aircraft_registry/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	driver := flag.String("driver", cfg.DatabaseDriver, "Database driver: sqlite or postgres")
	dbURL := flag.String("db", cfg.DatabaseURL, "SQLite file path or postgres connection string")
	dataset := flag.String("dataset", cfg.DatasetURL, "Dataset archive URL")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Driver: *driver, URL: *dbURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	// os.Exit skips deferred calls, so the store is closed explicitly on
	// every path.
	if err := st.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		st.Close()
		os.Exit(1)
	}

	svc := refresh.NewService(st, *dataset, refresh.Options{Logger: logger})

	res, err := svc.Refresh(ctx, store.TriggerManual)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
		st.Close()
		os.Exit(1)
	}

	version := "unknown"
	if res.DataVersion != nil {
		version = *res.DataVersion
	}
	fmt.Printf("ingestion=%d duration=%dms dataVersion=%s\n", res.IngestionID, res.Duration.Milliseconds(), version)
	fmt.Printf("manufacturers=%d models=%d engines=%d aircraft=%d owners=%d ownerLinks=%d\n",
		res.Stats.Manufacturers, res.Stats.AircraftModels, res.Stats.Engines,
		res.Stats.Aircraft, res.Stats.Owners, res.Stats.OwnerLinks)
	st.Close()
}
