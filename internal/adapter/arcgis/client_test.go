package arcgis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

var testArea = domain.SearchArea{
	ID:     "pisgah",
	Name:   "Pisgah National Forest",
	Center: domain.GeoPoint{Lat: 35.35, Lon: -82.75},
	Bounds: domain.BoundingBox{South: 35.0, West: -83.2, North: 35.7, East: -82.3},
}

func testClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_FetchTrails_MergesSegmentsByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("f"))
		assert.Equal(t, "esriGeometryEnvelope", q.Get("geometryType"))
		assert.Equal(t, "4326", q.Get("inSR"))

		var envelope map[string]any
		require.NoError(t, json.Unmarshal([]byte(q.Get("geometry")), &envelope))
		assert.Equal(t, -83.2, envelope["xmin"])
		assert.Equal(t, 35.0, envelope["ymin"])

		resp := featureResponse{
			Features: []feature{
				{
					Attributes: attributes{Name: "Ridge Trail", Miles: 1.2, TrailClass: 3, HikerPedestrian: "Y"},
					Geometry:   &geometry{Paths: [][][]float64{{{-82.9, 35.1}, {-82.8, 35.2}}}},
				},
				{
					Attributes: attributes{Name: "RIDGE TRAIL", Miles: 0.8},
					Geometry:   &geometry{Paths: [][][]float64{{{-82.7, 35.3}}}},
				},
				{
					Attributes: attributes{Name: "Unknown", Miles: 0.4},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	trails, err := testClient(srv.URL).FetchTrails(context.Background(), "nc", testArea)
	require.NoError(t, err)
	require.Len(t, trails, 1, "placeholder-named segment dropped, same-name segments merged")

	got := trails[0]
	assert.Equal(t, "nc/pisgah/ridge-trail", got.ID)
	require.NotNil(t, got.LengthMiles)
	assert.InDelta(t, 2.0, *got.LengthMiles, 1e-9)
	require.Len(t, got.Geometry, 3)
	assert.Equal(t, domain.GeoPoint{Lat: 35.1, Lon: -82.9}, got.Geometry[0])
	require.NotNil(t, got.Difficulty)
	assert.Equal(t, domain.DifficultyModerate, *got.Difficulty)
	require.NotNil(t, got.TrailType)
	assert.Equal(t, "hiking", *got.TrailType)
	assert.Equal(t, domain.SourceGIS, got.Source)
}

func TestClient_FetchTrails_NonSuccessStatusIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	trails, err := testClient(srv.URL).FetchTrails(context.Background(), "nc", testArea)
	require.NoError(t, err, "non-success status degrades to empty, not error")
	assert.Empty(t, trails)
}

func TestClient_FetchTrails_ServiceErrorInBodyIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid geometry"}}`))
	}))
	defer srv.Close()

	trails, err := testClient(srv.URL).FetchTrails(context.Background(), "nc", testArea)
	require.NoError(t, err)
	assert.Empty(t, trails)
}

func TestClient_FetchTrails_ZeroFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	trails, err := testClient(srv.URL).FetchTrails(context.Background(), "nc", testArea)
	require.NoError(t, err)
	assert.Empty(t, trails)
}

func TestClient_FetchTrails_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.FetchTrails(context.Background(), "nc", testArea)
	require.Error(t, err)
}
