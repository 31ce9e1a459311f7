// Command gis-validate-deploy checks the staged tormays tables of the named
// datasets against their production tables and deploys the ones whose row
// count is within the configured limits.
//
// Usage:
//
//	gis-validate-deploy [--dry-run] <dataset>... | all
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
	dryRun := flag.BoolP("dry-run", "n", false, "validate only, do not deploy")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <dataset>... | all\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(flag.Args(), *dryRun))
}

func run(keys []string, dryRun bool) int {
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

	if _, err := core.Resolve(keys); err != nil {
		log.Error("cannot validate datasets", "error", err, "hint", core.FormatUserError(err))
		return 1
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err, "hint", core.FormatUserError(err))
		return 1
	}
	defer pool.Close()

	svc := core.NewService(cfg, core.NewStore(pool, cfg.Common.BatchSize))
	results, err := svc.ValidateAndDeploy(ctx, keys, dryRun)
	if err != nil {
		log.Error("cannot validate datasets", "error", err, "hint", core.FormatUserError(err))
		return 1
	}

	for _, r := range results {
		v := r.Validation
		attrs := []any{
			"dataset", v.Target.Dataset,
			"table", v.Target.Org,
			"status", string(v.Status),
			"old", v.Old,
			"new", v.New,
		}
		switch {
		case r.Err != nil:
			log.Error("target summary", append(attrs, "error", core.FormatUserError(r.Err))...)
		case r.Deploy != nil:
			log.Info("target summary", append(attrs, "deleted", r.Deploy.Deleted, "inserted", r.Deploy.Inserted)...)
		default:
			log.Info("target summary", attrs...)
		}
	}

	if failed := core.FailedTargets(results); failed > 0 {
		log.Error("validate/deploy finished with errors",
			"failed", failed,
			"rejected", core.RejectedTargets(results),
			"total", len(results),
		)
		return 1
	}
	log.Info("validate/deploy finished",
		"rejected", core.RejectedTargets(results),
		"total", len(results),
		"dry_run", dryRun,
	)
	return 0
}
