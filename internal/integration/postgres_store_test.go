//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
	"github.com/couchcryptid/trail-data-etl/internal/reconcile"
	"github.com/couchcryptid/trail-data-etl/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres launches a disposable Postgres container and returns a DSN.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("trails"),
		tcpostgres.WithUsername("trails"),
		tcpostgres.WithPassword("trails"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgres connection string")
	return dsn
}

func newStore(ctx context.Context, t *testing.T, clock clockwork.Clock) *store.Store {
	t.Helper()

	dsn := startPostgres(ctx, t)
	db, err := store.Open(dsn)
	require.NoError(t, err, "open store")

	s := store.New(db, discardLogger(), clock, 100)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func gisTrail(id, name string, length *float64, geometry []domain.GeoPoint) domain.Trail {
	diff := domain.DifficultyModerate
	return domain.Trail{
		ID:          id,
		Name:        name,
		RegionCode:  "nc",
		AreaID:      "pisgah",
		AreaName:    "Pisgah Ranger District",
		LengthMiles: length,
		Difficulty:  &diff,
		Lat:         35.32,
		Lon:         -82.88,
		Geometry:    geometry,
		Source:      domain.SourceGIS,
	}
}

func TestUpsertTrailsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC))
	s := newStore(ctx, t, clock)

	trails := []domain.Trail{
		gisTrail("nc-pisgah-art-loeb", "Art Loeb Trail", floatPtr(30.1), nil),
		gisTrail("nc-pisgah-black-balsam", "Black Balsam Knob Trail", floatPtr(3.4), nil),
	}

	written, err := s.UpsertTrails(ctx, trails)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	// Re-running the same batch must not error or change stored state.
	written, err = s.UpsertTrails(ctx, trails)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	got, err := s.TrailsForArea(ctx, "nc", "pisgah")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestUpsertTrailsPreservesEnrichment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC))
	s := newStore(ctx, t, clock)

	geometry := []domain.GeoPoint{{Lat: 35.325, Lon: -82.875}, {Lat: 35.327, Lon: -82.871}}
	enriched := gisTrail("nc-pisgah-black-balsam", "Black Balsam Knob Trail", floatPtr(3.4), geometry)
	enriched.RefURL = strPtr("https://www.openstreetmap.org/way/12345")

	_, err := s.UpsertTrails(ctx, []domain.Trail{enriched})
	require.NoError(t, err)

	// A later sync with sparse attributes must not erase what is stored.
	sparse := gisTrail("nc-pisgah-black-balsam", "Black Balsam Knob Trail", nil, nil)
	sparse.Difficulty = nil
	_, err = s.UpsertTrails(ctx, []domain.Trail{sparse})
	require.NoError(t, err)

	got, err := s.TrailsForArea(ctx, "nc", "pisgah")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NotNil(t, got[0].LengthMiles)
	assert.InDelta(t, 3.4, *got[0].LengthMiles, 0.001)
	require.NotNil(t, got[0].Difficulty)
	assert.Equal(t, domain.DifficultyModerate, *got[0].Difficulty)
	require.NotNil(t, got[0].RefURL)
	assert.Len(t, got[0].Geometry, 2)
}

func TestUpsertTrailsDeduplicatesBatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC))
	s := newStore(ctx, t, clock)

	first := gisTrail("nc-pisgah-art-loeb", "Art Loeb Trail", floatPtr(29.0), nil)
	second := gisTrail("nc-pisgah-art-loeb", "Art Loeb Trail", floatPtr(30.1), nil)

	written, err := s.UpsertTrails(ctx, []domain.Trail{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	got, err := s.TrailsForArea(ctx, "nc", "pisgah")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].LengthMiles)
	assert.InDelta(t, 30.1, *got[0].LengthMiles, 0.001)
}

func TestApplyBackfillsOnlyFillsMissingGeometry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC))
	s := newStore(ctx, t, clock)

	withGeometry := gisTrail("nc-pisgah-art-loeb", "Art Loeb Trail", floatPtr(30.1),
		[]domain.GeoPoint{{Lat: 35.3, Lon: -82.9}})
	without := gisTrail("nc-pisgah-black-balsam", "Black Balsam Knob Trail", floatPtr(3.4), nil)

	_, err := s.UpsertTrails(ctx, []domain.Trail{withGeometry, without})
	require.NoError(t, err)

	backfills := []reconcile.Backfill{
		{TrailID: "nc-pisgah-art-loeb", Geometry: []domain.GeoPoint{{Lat: 0, Lon: 0}}},
		{TrailID: "nc-pisgah-black-balsam", Geometry: []domain.GeoPoint{{Lat: 35.325, Lon: -82.875}, {Lat: 35.327, Lon: -82.871}}},
		{TrailID: "nc-pisgah-missing", Geometry: []domain.GeoPoint{{Lat: 1, Lon: 1}}},
	}

	applied, err := s.ApplyBackfills(ctx, backfills)
	require.NoError(t, err)
	assert.Equal(t, 1, applied, "only the row missing geometry should be updated")

	got, err := s.TrailsForArea(ctx, "nc", "pisgah")
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := make(map[string]domain.Trail, len(got))
	for _, tr := range got {
		byID[tr.ID] = tr
	}
	assert.Len(t, byID["nc-pisgah-art-loeb"].Geometry, 1, "existing geometry must not be replaced")
	assert.Len(t, byID["nc-pisgah-black-balsam"].Geometry, 2)
}

func TestUpsertCampgrounds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC))
	s := newStore(ctx, t, clock)

	camp := domain.Campground{
		ID:         "nc-pisgah-cg-4400123",
		Name:       "Davidson River Campground",
		RegionCode: "nc",
		AreaID:     "pisgah",
		Lat:        35.28,
		Lon:        -82.72,
		Fee:        strPtr("yes"),
		Website:    strPtr("https://www.recreation.gov/camping/campgrounds/233862"),
	}

	written, err := s.UpsertCampgrounds(ctx, []domain.Campground{camp})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	// Sparse re-sync keeps the stored fee and website.
	camp.Fee = nil
	camp.Website = nil
	_, err = s.UpsertCampgrounds(ctx, []domain.Campground{camp})
	require.NoError(t, err)
}
