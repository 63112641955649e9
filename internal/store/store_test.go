package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

func TestDedupeLastWins(t *testing.T) {
	rows := []trailRow{
		{ID: "a", Name: "First A"},
		{ID: "b", Name: "B"},
		{ID: "a", Name: "Last A"},
	}

	out := dedupeLastWins(rows, func(r trailRow) string { return r.ID })
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "Last A", out[0].Name, "last record for an identity wins")
	assert.Equal(t, "b", out[1].ID)
}

func TestChunk(t *testing.T) {
	rows := []trailRow{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}}

	batches := chunk(rows, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)

	assert.Len(t, chunk(rows, 0), 1, "non-positive size means one batch")
	assert.Empty(t, chunk([]trailRow{}, 10))
}

func TestRowFromTrail_RoundTrip(t *testing.T) {
	length := 3.4
	diff := domain.DifficultyModerate
	typ := "hiking"
	url := "https://www.openstreetmap.org/way/101"
	syncedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	in := domain.Trail{
		ID:          "nc/pisgah/black-balsam-knob-trail",
		Name:        "Black Balsam Knob Trail",
		RegionCode:  "nc",
		AreaID:      "pisgah",
		AreaName:    "Pisgah National Forest",
		LengthMiles: &length,
		Difficulty:  &diff,
		TrailType:   &typ,
		Lat:         35.325,
		Lon:         -82.875,
		Geometry:    []domain.GeoPoint{{Lat: 35.325, Lon: -82.875}, {Lat: 35.33, Lon: -82.87}},
		RefURL:      &url,
		Source:      domain.SourceGIS,
	}

	row, err := rowFromTrail(in, syncedAt)
	require.NoError(t, err)
	assert.Equal(t, syncedAt, row.LastSynced)
	require.NotNil(t, row.Geometry)

	out, err := trailFromRow(row)
	require.NoError(t, err)

	in.LastSynced = syncedAt
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRowFromTrail_NoGeometryStoresNull(t *testing.T) {
	row, err := rowFromTrail(domain.Trail{ID: "x", Name: "X Trail"}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, row.Geometry, "empty geometry must serialize to NULL so COALESCE keeps stored data")
}

func TestTrailFromRow_BadGeometry(t *testing.T) {
	bad := "not-json"
	_, err := trailFromRow(trailRow{ID: "x", Geometry: &bad})
	require.Error(t, err)
}
