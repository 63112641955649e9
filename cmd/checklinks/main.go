// Command checklinks validates the external reference URLs stored in the
// trail catalog. URLs are checked in small parallel batches with a pause
// between batches, and progress is checkpointed per region so an interrupted
// run resumes where it stopped.
//
// Usage:
//
//	checklinks -region nc
//	checklinks            # all configured regions
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trail-data-etl/internal/config"
	"github.com/couchcryptid/trail-data-etl/internal/linkcheck"
	"github.com/couchcryptid/trail-data-etl/internal/observability"
	"github.com/couchcryptid/trail-data-etl/internal/region"
	"github.com/couchcryptid/trail-data-etl/internal/store"
)

func main() {
	_ = godotenv.Load(".env.local")

	regionFlag := flag.String("region", "", "region code to check (default: all configured regions)")
	flag.Parse()

	if err := run(*regionFlag); err != nil {
		slog.Error("link check failed", "error", err)
		os.Exit(1)
	}
}

func run(regionCode string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	catalog, err := region.Load()
	if err != nil {
		return fmt.Errorf("load region catalog: %w", err)
	}
	var codes []string
	if regionCode != "" {
		codes = []string{regionCode}
	}
	regions, err := catalog.Select(codes)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	st := store.New(db, logger, clockwork.NewRealClock(), cfg.BatchSize)

	checker := linkcheck.NewChecker(
		cfg.LinkCheckTimeout,
		cfg.LinkCheckConcurrency,
		cfg.LinkCheckBatchSize,
		cfg.LinkCheckBatchDelay,
		cfg.ProgressDir,
		logger,
		metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, reg := range regions {
		refs, err := st.TrailRefURLs(ctx, reg.Code)
		if err != nil {
			return fmt.Errorf("load reference urls for %s: %w", reg.Code, err)
		}
		summary, err := checker.Run(ctx, reg.Code, refs)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d valid, %d broken, %d errors, %d skipped\n",
			reg.Code, summary.Valid, summary.Broken, summary.Errors, summary.Skipped)
	}
	return nil
}
