// Command gis-process turns downloaded source material into tormays GIS
// material for the named datasets.
//
// Usage:
//
//	gis-process [--skip-db] [--skip-files] [--list] <dataset>... | all
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/core"
	_ "github.com/haitaton/gis-material-update/internal/core/datasets" // Register all datasets
	"github.com/haitaton/gis-material-update/internal/database"
	"github.com/haitaton/gis-material-update/internal/logging"
	flag "github.com/spf13/pflag"
)

func main() {
	skipDB := flag.Bool("skip-db", false, "do not write results into the database")
	skipFiles := flag.Bool("skip-files", false, "do not write GeoPackage output files")
	list := flag.BoolP("list", "l", false, "list registered datasets and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <dataset>... | all\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *list {
		printDatasets()
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(flag.Args(), core.RunOptions{SkipDatabase: *skipDB, SkipFiles: *skipFiles}))
}

func printDatasets() {
	byGroup := core.NewService(nil, nil).ListDatasetsByGroup()
	for _, group := range core.Groups() {
		fmt.Printf("%s:\n", group)
		for _, info := range byGroup[group] {
			fmt.Printf("  %-24s %s\n", info.Key, info.Label)
		}
	}
}

func run(keys []string, opts core.RunOptions) int {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if config.LoadDotEnv() {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "hint", core.FormatUserError(err))
		return 1
	}

	closer, err := logging.SetupWithFile(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Filename: cfg.Logging.Filename,
		Filemode: cfg.Logging.Filemode,
	})
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx)
	log := logging.FromContext(ctx)

	log.Info("configuration loaded", "config", cfg.String(), "datasets", keys)

	var store *core.Store
	if !opts.SkipDatabase {
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			log.Error("failed to connect to database", "error", err, "hint", core.FormatUserError(err))
			return 1
		}
		defer pool.Close()
		store = core.NewStore(pool, cfg.Common.BatchSize)
	}

	svc := core.NewService(cfg, store)
	results, err := svc.Run(ctx, keys, opts)
	if err != nil {
		log.Error("cannot run datasets", "error", err, "hint", core.FormatUserError(err))
		return 1
	}

	for _, r := range results {
		if r.Err != nil {
			log.Error("dataset summary",
				"dataset", r.Dataset,
				"status", string(r.Phase),
				"failed_in", string(r.FailedIn),
				"error", core.FormatUserError(r.Err),
			)
			continue
		}
		log.Info("dataset summary", "dataset", r.Dataset, "status", string(r.Phase), "duration", r.Duration)
	}

	if failed := core.FailedRuns(results); failed > 0 {
		log.Error("processing finished with failures", "failed", failed, "total", len(results))
		return 1
	}
	log.Info("processing finished", "total", len(results))
	return 0
}
