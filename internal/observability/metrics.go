package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	SegmentsFetched     *prometheus.CounterVec // labels: source={state_gis,osm}
	FetchErrors         *prometheus.CounterVec // labels: source={state_gis,osm}
	TrailsReconciled    prometheus.Counter
	TrailsUpserted      prometheus.Counter
	GeometryBackfills   prometheus.Counter
	CampgroundsUpserted prometheus.Counter
	PipelineRunning     prometheus.Gauge

	// Per-area metrics.
	AreasProcessed prometheus.Counter
	AreasFailed    prometheus.Counter
	AreaDuration   prometheus.Histogram

	// Overpass retry behavior.
	OverpassRetries      prometheus.Counter
	OverpassSubdivisions prometheus.Counter

	// Link validation outcomes.
	LinksChecked *prometheus.CounterVec // labels: outcome={valid,broken,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SegmentsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "segments_fetched_total",
			Help:      "Total trail segments fetched, by upstream source.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "fetch_errors_total",
			Help:      "Total fetch failures, by upstream source.",
		}, []string{"source"}),
		TrailsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "trails_reconciled_total",
			Help:      "Total trails produced by cross-source reconciliation.",
		}),
		TrailsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "trails_upserted_total",
			Help:      "Total trail rows written to the catalog.",
		}),
		GeometryBackfills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "geometry_backfills_total",
			Help:      "Total stored trails that had missing geometry filled in.",
		}),
		CampgroundsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "campgrounds_upserted_total",
			Help:      "Total campground rows written to the catalog.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trail_etl",
			Name:      "pipeline_running",
			Help:      "1 when an ingestion run is active, 0 otherwise.",
		}),
		AreasProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "areas_processed_total",
			Help:      "Total search areas processed to completion.",
		}),
		AreasFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "areas_failed_total",
			Help:      "Total search areas abandoned after a persistence failure.",
		}),
		AreaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trail_etl",
			Name:      "area_duration_seconds",
			Help:      "Duration of a complete fetch-reconcile-persist cycle for one area.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		OverpassRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "overpass_retries_total",
			Help:      "Total Overpass requests retried after rate limiting.",
		}),
		OverpassSubdivisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "overpass_subdivisions_total",
			Help:      "Total bounding boxes split into quadrants after a server timeout.",
		}),
		LinksChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_etl",
			Name:      "links_checked_total",
			Help:      "Reference URL validation results by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.SegmentsFetched,
		m.FetchErrors,
		m.TrailsReconciled,
		m.TrailsUpserted,
		m.GeometryBackfills,
		m.CampgroundsUpserted,
		m.PipelineRunning,
		m.AreasProcessed,
		m.AreasFailed,
		m.AreaDuration,
		m.OverpassRetries,
		m.OverpassSubdivisions,
		m.LinksChecked,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		SegmentsFetched:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "trail_etl", Name: "segments_fetched_total"}, []string{"source"}),
		FetchErrors:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "trail_etl", Name: "fetch_errors_total"}, []string{"source"}),
		TrailsReconciled:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "trails_reconciled_total"}),
		TrailsUpserted:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "trails_upserted_total"}),
		GeometryBackfills:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "geometry_backfills_total"}),
		CampgroundsUpserted:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "campgrounds_upserted_total"}),
		PipelineRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "trail_etl", Name: "pipeline_running"}),
		AreasProcessed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "areas_processed_total"}),
		AreasFailed:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "areas_failed_total"}),
		AreaDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "trail_etl", Name: "area_duration_seconds"}),
		OverpassRetries:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "overpass_retries_total"}),
		OverpassSubdivisions: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "trail_etl", Name: "overpass_subdivisions_total"}),
		LinksChecked:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "trail_etl", Name: "links_checked_total"}, []string{"outcome"}),
	}
}
