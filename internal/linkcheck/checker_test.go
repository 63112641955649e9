package linkcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/trail-data-etl/internal/observability"
	"github.com/couchcryptid/trail-data-etl/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChecker(t *testing.T, dir string) *Checker {
	t.Helper()
	return NewChecker(5*time.Second, 3, 2, 0, dir, discardLogger(), observability.NewMetricsForTesting())
}

func TestRun_ClassifiesOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			w.Header().Set("Location", "/ok")
			w.WriteHeader(http.StatusMovedPermanently)
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestChecker(t, dir)

	refs := []store.TrailRef{
		{TrailID: "nc-osm-1", URL: srv.URL + "/ok"},
		{TrailID: "nc-osm-2", URL: srv.URL + "/moved"},
		{TrailID: "nc-osm-3", URL: srv.URL + "/gone"},
		{TrailID: "nc-osm-4", URL: srv.URL + "/boom"},
		{TrailID: "nc-osm-5", URL: "http://127.0.0.1:1/unreachable"},
	}

	summary, err := c.Run(context.Background(), "nc", refs)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Valid, "2xx and redirects are valid")
	assert.Equal(t, 2, summary.Broken)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 0, summary.Skipped)

	// A completed run leaves no progress file behind.
	_, err = os.Stat(progressPath(dir, "nc"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_RetriesHeadRejectionWithGet(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestChecker(t, t.TempDir())
	summary, err := c.Run(context.Background(), "nc", []store.TrailRef{
		{TrailID: "nc-osm-1", URL: srv.URL + "/page"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 1, gets)
}

func TestRun_ResumesFromProgressFile(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	prior := &Progress{
		RegionCode: "nc",
		StartedAt:  time.Date(2024, 4, 26, 8, 0, 0, 0, time.UTC),
		Checked:    map[string]string{"nc-osm-1": OutcomeValid, "nc-osm-2": OutcomeBroken},
	}
	require.NoError(t, prior.Save(dir))

	c := newTestChecker(t, dir)
	summary, err := c.Run(context.Background(), "nc", []store.TrailRef{
		{TrailID: "nc-osm-1", URL: srv.URL + "/a"},
		{TrailID: "nc-osm-2", URL: srv.URL + "/b"},
		{TrailID: "nc-osm-3", URL: srv.URL + "/c"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped, "previously checked URLs are not re-fetched")
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 1, hits)
}

func TestRun_CancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel() // cancel mid-run, after the first batch has started
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewChecker(5*time.Second, 1, 1, time.Hour, dir, discardLogger(), observability.NewMetricsForTesting())

	_, err := c.Run(ctx, "nc", []store.TrailRef{
		{TrailID: "nc-osm-1", URL: srv.URL + "/a"},
		{TrailID: "nc-osm-2", URL: srv.URL + "/b"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgress_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := &Progress{
		RegionCode: "nc",
		StartedAt:  time.Date(2024, 4, 26, 8, 0, 0, 0, time.UTC),
		Checked:    map[string]string{"nc-osm-1": OutcomeValid},
	}
	require.NoError(t, p.Save(dir))

	loaded, err := LoadProgress(dir, "nc", time.Now())
	require.NoError(t, err)
	assert.Equal(t, p.RegionCode, loaded.RegionCode)
	assert.True(t, p.StartedAt.Equal(loaded.StartedAt))
	assert.Equal(t, p.Checked, loaded.Checked)
}

func TestLoadProgress_MissingFileStartsFresh(t *testing.T) {
	now := time.Date(2024, 4, 26, 8, 0, 0, 0, time.UTC)
	p, err := LoadProgress(t.TempDir(), "nc", now)
	require.NoError(t, err)
	assert.Equal(t, "nc", p.RegionCode)
	assert.Equal(t, now, p.StartedAt)
	assert.Empty(t, p.Checked)
}

func TestLoadProgress_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(progressPath(dir, "nc"), []byte("not-json{{{"), 0o644))

	_, err := LoadProgress(dir, "nc", time.Now())
	require.Error(t, err)
}

func TestRemoveProgress_MissingFileIsNotAnError(t *testing.T) {
	assert.NoError(t, RemoveProgress(t.TempDir(), "nc"))
}
