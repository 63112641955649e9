package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
	"github.com/couchcryptid/trail-data-etl/internal/observability"
	"github.com/couchcryptid/trail-data-etl/internal/reconcile"
	"github.com/couchcryptid/trail-data-etl/internal/region"
)

// TrailFetcher retrieves the named trails inside one search area.
type TrailFetcher interface {
	FetchTrails(ctx context.Context, regionCode string, area domain.SearchArea) ([]domain.Trail, error)
}

// CampgroundFetcher retrieves the named campgrounds inside one search area.
type CampgroundFetcher interface {
	FetchCampgrounds(ctx context.Context, regionCode string, area domain.SearchArea) ([]domain.Campground, error)
}

// CatalogStore persists reconciled trails and campgrounds.
type CatalogStore interface {
	UpsertTrails(ctx context.Context, trails []domain.Trail) (int, error)
	UpsertCampgrounds(ctx context.Context, camps []domain.Campground) (int, error)
	TrailsForArea(ctx context.Context, regionCode, areaID string) ([]domain.Trail, error)
	ApplyBackfills(ctx context.Context, backfills []reconcile.Backfill) (int, error)
}

// Publisher announces catalog updates to downstream consumers.
type Publisher interface {
	PublishTrails(ctx context.Context, trails []domain.Trail) error
}

// Params collects the pipeline's collaborators and tuning knobs.
// Publisher may be nil to disable downstream publishing; Clock defaults
// to the real clock.
type Params struct {
	Authoritative TrailFetcher
	Crowdsourced  TrailFetcher
	Campgrounds   CampgroundFetcher
	Store         CatalogStore
	Publisher     Publisher
	Logger        *slog.Logger
	Metrics       *observability.Metrics
	Clock         clockwork.Clock

	// IntraAreaDelay paces successive upstream requests; InterAreaDelay
	// separates whole areas. Both keep load on shared public APIs polite.
	IntraAreaDelay time.Duration
	InterAreaDelay time.Duration
}

// RunStats summarizes one ingestion run.
type RunStats struct {
	AreasProcessed      int
	AreasFailed         int
	TrailsUpserted      int
	GeometryBackfills   int
	CampgroundsUpserted int
}

// Pipeline walks the configured regions area by area, fetching from both
// sources, reconciling, and persisting. Areas are processed sequentially so
// upstream services see at most one in-flight request from this process.
type Pipeline struct {
	authoritative TrailFetcher
	crowdsourced  TrailFetcher
	campgrounds   CampgroundFetcher
	store         CatalogStore
	publisher     Publisher
	logger        *slog.Logger
	metrics       *observability.Metrics
	clock         clockwork.Clock
	limiter       *rate.Limiter
	interDelay    time.Duration
	ready         atomic.Bool
}

// New creates a Pipeline from the given collaborators.
func New(p Params) *Pipeline {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limit := rate.Inf
	if p.IntraAreaDelay > 0 {
		limit = rate.Every(p.IntraAreaDelay)
	}
	return &Pipeline{
		authoritative: p.Authoritative,
		crowdsourced:  p.Crowdsourced,
		campgrounds:   p.Campgrounds,
		store:         p.Store,
		publisher:     p.Publisher,
		logger:        p.Logger,
		metrics:       p.Metrics,
		clock:         clock,
		limiter:       rate.NewLimiter(limit, 1),
		interDelay:    p.InterAreaDelay,
	}
}

// CheckReadiness returns nil once at least one area has been processed,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no search area has been processed yet")
	}
	return nil
}

// RunTrails ingests trails for every area of the given regions. A failure in
// one area is logged and counted; the run continues with the next area. The
// returned error is non-nil only when the context is cancelled.
func (p *Pipeline) RunTrails(ctx context.Context, regions []region.Region) (RunStats, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var stats RunStats
	first := true
	for _, reg := range regions {
		for _, area := range reg.Areas {
			if !first && !p.sleep(ctx, p.interDelay) {
				return stats, ctx.Err()
			}
			first = false

			if err := p.processArea(ctx, reg, area, &stats); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				p.logger.Error("area failed",
					"region", reg.Code, "area", area.ID, "error", err)
				p.metrics.AreasFailed.Inc()
				stats.AreasFailed++
			}
		}
	}
	return stats, ctx.Err()
}

// processArea runs one fetch-reconcile-persist cycle. Fetch failures degrade
// to empty result sets; only persistence failures abandon the area.
func (p *Pipeline) processArea(ctx context.Context, reg region.Region, area domain.SearchArea, stats *RunStats) error {
	start := p.clock.Now()
	p.logger.Info("processing area", "region", reg.Code, "area", area.ID, "name", area.Name)

	authoritative := p.fetchTrails(ctx, p.authoritative, domain.SourceGIS, reg.Code, area)
	crowdsourced := p.fetchTrails(ctx, p.crowdsourced, domain.SourceOSM, reg.Code, area)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	persisted, err := p.store.TrailsForArea(ctx, reg.Code, area.ID)
	if err != nil {
		return err
	}

	res := reconcile.Merge(authoritative, crowdsourced, persisted)
	p.metrics.TrailsReconciled.Add(float64(len(res.Trails)))

	written, err := p.store.UpsertTrails(ctx, res.Trails)
	if err != nil {
		return err
	}
	p.metrics.TrailsUpserted.Add(float64(written))
	stats.TrailsUpserted += written

	applied, err := p.store.ApplyBackfills(ctx, res.Backfills)
	if err != nil {
		return err
	}
	p.metrics.GeometryBackfills.Add(float64(applied))
	stats.GeometryBackfills += applied

	if p.publisher != nil && len(res.Trails) > 0 {
		if err := p.publisher.PublishTrails(ctx, res.Trails); err != nil {
			p.logger.Warn("publish failed",
				"region", reg.Code, "area", area.ID, "error", err)
		}
	}

	p.metrics.AreasProcessed.Inc()
	p.metrics.AreaDuration.Observe(p.clock.Since(start).Seconds())
	stats.AreasProcessed++
	p.ready.Store(true)

	p.logger.Info("area complete",
		"region", reg.Code,
		"area", area.ID,
		"trails", written,
		"backfills", applied,
	)
	return nil
}

// fetchTrails waits on the rate limiter, runs one fetch, and degrades a
// failure to an empty result so one source outage never blocks the other.
func (p *Pipeline) fetchTrails(ctx context.Context, f TrailFetcher, source, regionCode string, area domain.SearchArea) []domain.Trail {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}
	trails, err := f.FetchTrails(ctx, regionCode, area)
	if err != nil {
		p.logger.Error("fetch failed",
			"source", source, "region", regionCode, "area", area.ID, "error", err)
		p.metrics.FetchErrors.WithLabelValues(source).Inc()
		return nil
	}
	p.metrics.SegmentsFetched.WithLabelValues(source).Add(float64(len(trails)))
	return trails
}

// RunCampgrounds ingests campgrounds for every area of the given regions.
func (p *Pipeline) RunCampgrounds(ctx context.Context, regions []region.Region) (RunStats, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var stats RunStats
	first := true
	for _, reg := range regions {
		for _, area := range reg.Areas {
			if !first && !p.sleep(ctx, p.interDelay) {
				return stats, ctx.Err()
			}
			first = false

			if err := p.limiter.Wait(ctx); err != nil {
				return stats, ctx.Err()
			}
			camps, err := p.campgrounds.FetchCampgrounds(ctx, reg.Code, area)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				p.logger.Error("fetch failed",
					"source", domain.SourceOSM, "region", reg.Code, "area", area.ID, "error", err)
				p.metrics.FetchErrors.WithLabelValues(domain.SourceOSM).Inc()
				continue
			}

			written, err := p.store.UpsertCampgrounds(ctx, camps)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				p.logger.Error("area failed",
					"region", reg.Code, "area", area.ID, "error", err)
				p.metrics.AreasFailed.Inc()
				stats.AreasFailed++
				continue
			}
			p.metrics.CampgroundsUpserted.Add(float64(written))
			stats.CampgroundsUpserted += written
			p.metrics.AreasProcessed.Inc()
			stats.AreasProcessed++
			p.ready.Store(true)

			p.logger.Info("area complete",
				"region", reg.Code, "area", area.ID, "campgrounds", written)
		}
	}
	return stats, ctx.Err()
}

// sleep blocks for d or until the context is cancelled. Returns false on
// cancellation.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
