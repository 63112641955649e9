// Command ingest fetches hiking trails and campgrounds from the authoritative
// GIS service and the Overpass API, reconciles them, and upserts the result
// into the Postgres catalog.
//
// Usage:
//
//	ingest trails [region ...]       ingest trails for the given regions (default: all)
//	ingest campgrounds [region ...]  ingest campgrounds for the given regions
//	ingest all [region ...]          ingest trails, then campgrounds
//	ingest list-regions              print the configured region codes
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/trail-data-etl/internal/adapter/arcgis"
	httpadapter "github.com/couchcryptid/trail-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/trail-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/trail-data-etl/internal/adapter/overpass"
	"github.com/couchcryptid/trail-data-etl/internal/config"
	"github.com/couchcryptid/trail-data-etl/internal/observability"
	"github.com/couchcryptid/trail-data-etl/internal/pipeline"
	"github.com/couchcryptid/trail-data-etl/internal/region"
	"github.com/couchcryptid/trail-data-etl/internal/store"
)

func main() {
	_ = godotenv.Load(".env.local")

	cmd := &cli.Command{
		Name:  "ingest",
		Usage: "Fetch, reconcile, and persist hiking trail data",
		Commands: []*cli.Command{
			{
				Name:      "trails",
				Usage:     "Ingest trails for the given regions (default: all)",
				ArgsUsage: "[region ...]",
				Action:    runIngest(ingestTrails),
			},
			{
				Name:      "campgrounds",
				Usage:     "Ingest campgrounds for the given regions (default: all)",
				ArgsUsage: "[region ...]",
				Action:    runIngest(ingestAll(false, true)),
			},
			{
				Name:      "all",
				Usage:     "Ingest trails, then campgrounds",
				ArgsUsage: "[region ...]",
				Action:    runIngest(ingestAll(true, true)),
			},
			{
				Name:   "list-regions",
				Usage:  "Print the configured region codes",
				Action: listRegions,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func listRegions(_ context.Context, _ *cli.Command) error {
	catalog, err := region.Load()
	if err != nil {
		return err
	}
	for _, reg := range catalog.All() {
		fmt.Printf("%s\t%s\t(%d areas)\n", reg.Code, reg.Name, len(reg.Areas))
	}
	return nil
}

type ingestFunc func(ctx context.Context, p *pipeline.Pipeline, regions []region.Region, logger *slog.Logger) error

func ingestTrails(ctx context.Context, p *pipeline.Pipeline, regions []region.Region, logger *slog.Logger) error {
	stats, err := p.RunTrails(ctx, regions)
	logStats(logger, "trails", stats)
	return err
}

func ingestAll(trails, campgrounds bool) ingestFunc {
	return func(ctx context.Context, p *pipeline.Pipeline, regions []region.Region, logger *slog.Logger) error {
		if trails {
			stats, err := p.RunTrails(ctx, regions)
			logStats(logger, "trails", stats)
			if err != nil {
				return err
			}
		}
		if campgrounds {
			stats, err := p.RunCampgrounds(ctx, regions)
			logStats(logger, "campgrounds", stats)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func logStats(logger *slog.Logger, kind string, stats pipeline.RunStats) {
	logger.Info("run finished",
		"kind", kind,
		"areas_processed", stats.AreasProcessed,
		"areas_failed", stats.AreasFailed,
		"trails_upserted", stats.TrailsUpserted,
		"geometry_backfills", stats.GeometryBackfills,
		"campgrounds_upserted", stats.CampgroundsUpserted,
	)
}

// runIngest wires configuration, storage, fetchers, and the monitoring
// server around one ingestion function.
func runIngest(fn ingestFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
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
		regions, err := catalog.Select(cmd.Args().Slice())
		if err != nil {
			return err
		}

		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		st := store.New(db, logger, clockwork.NewRealClock(), cfg.BatchSize)
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}

		gis := arcgis.NewClient(cfg.ArcGISBaseURL, cfg.ArcGISTimeout, logger)

		policy := overpass.DefaultPolicy()
		policy.MaxAttempts = cfg.OverpassMaxAttempts
		policy.InitialBackoff = cfg.OverpassInitialBackoff
		osm := overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, policy, clockwork.NewRealClock(), metrics, logger)

		var publisher pipeline.Publisher
		if cfg.KafkaEnabled {
			kp := kafkaadapter.NewPublisher(cfg, logger)
			defer kp.Close() //nolint:errcheck
			publisher = kp
			logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
		}

		p := pipeline.New(pipeline.Params{
			Authoritative:  gis,
			Crowdsourced:   osm,
			Campgrounds:    osm,
			Store:          st,
			Publisher:      publisher,
			Logger:         logger,
			Metrics:        metrics,
			IntraAreaDelay: cfg.IntraAreaDelay,
			InterAreaDelay: cfg.InterAreaDelay,
		})

		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runErr := fn(runCtx, p, regions, logger)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}

		return runErr
	}
}
