// Package overpass fetches named hiking ways and route relations from the
// crowdsourced map-data service. The service rate-limits aggressively and
// times out on large boxes, so every query runs through a bounded
// retry/subdivide state machine (see RetryPolicy).
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
	"github.com/couchcryptid/trail-data-etl/internal/observability"
)

const osmBaseURL = "https://www.openstreetmap.org"

// Client queries an Overpass API endpoint.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	serverTimeout time.Duration // Overpass [timeout:N] parameter
	policy        RetryPolicy
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates an Overpass client. serverTimeout is the server-side
// query budget; the HTTP client waits slightly longer so the server can
// answer with its own timeout status instead of a dropped connection.
func NewClient(endpoint string, serverTimeout time.Duration, policy RetryPolicy, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: serverTimeout + 30*time.Second,
		},
		serverTimeout: serverTimeout,
		policy:        policy,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

// FetchTrails returns named hiking trails intersecting the area's bounding
// box, first occurrence per normalized name. Exhausted retries and quadrant
// timeouts degrade to missing data, never to an error; only transport
// failures are returned.
func (c *Client) FetchTrails(ctx context.Context, regionCode string, area domain.SearchArea) ([]domain.Trail, error) {
	elements, err := c.fetchWithPolicy(ctx, c.trailQuery, area.Bounds, c.policy)
	if err != nil {
		return nil, err
	}

	// First occurrence of each normalized name wins. The seen set is scoped
	// to this call: names must never be suppressed across areas.
	seen := make(map[string]bool)
	var trails []domain.Trail
	for _, el := range elements {
		name := el.Tags["name"]
		if !domain.UsableWayName(name) {
			continue
		}
		key := domain.NormalizeName(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		trails = append(trails, c.trailFromElement(regionCode, area, el))
	}
	return trails, nil
}

// FetchCampgrounds returns named camp sites in the area, deduplicated by
// source-native id.
func (c *Client) FetchCampgrounds(ctx context.Context, regionCode string, area domain.SearchArea) ([]domain.Campground, error) {
	elements, err := c.fetchWithPolicy(ctx, c.campgroundQuery, area.Bounds, c.policy)
	if err != nil {
		return nil, err
	}

	var camps []domain.Campground
	for _, el := range elements {
		name := strings.TrimSpace(el.Tags["name"])
		if name == "" {
			continue
		}
		camps = append(camps, campgroundFromElement(regionCode, area, el, name))
	}
	return camps, nil
}

// fetchWithPolicy runs the retry/subdivide state machine for one bounding
// box. Returns nil (not an error) when the scope degrades to no data.
func (c *Client) fetchWithPolicy(ctx context.Context, build func(domain.BoundingBox) string, box domain.BoundingBox, policy RetryPolicy) ([]element, error) {
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		elements, status, err := c.post(ctx, build(box))
		if err != nil {
			return nil, err
		}

		switch status {
		case http.StatusOK:
			return elements, nil

		case http.StatusTooManyRequests:
			if attempt == policy.MaxAttempts {
				c.logger.Warn("overpass rate-limit retries exhausted, treating scope as empty",
					"box", box, "attempts", attempt)
				return nil, nil
			}
			wait := policy.backoffFor(attempt)
			c.logger.Info("overpass rate limited, backing off", "wait", wait, "attempt", attempt)
			c.metrics.OverpassRetries.Inc()
			if !c.sleep(ctx, wait) {
				return nil, ctx.Err()
			}

		case http.StatusGatewayTimeout:
			if !policy.Subdivide {
				c.logger.Warn("overpass quadrant timed out, accepting partial coverage", "box", box)
				return nil, nil
			}
			c.logger.Info("overpass query timed out server-side, subdividing box", "box", box)
			c.metrics.OverpassSubdivisions.Inc()
			return c.fetchQuadrants(ctx, build, box, policy)

		default:
			c.logger.Warn("overpass returned non-success status, treating scope as empty",
				"box", box, "status", status)
			return nil, nil
		}
	}
	return nil, nil
}

// fetchQuadrants unions the four quadrants of box, each with its own short
// retry budget and no further subdivision.
func (c *Client) fetchQuadrants(ctx context.Context, build func(domain.BoundingBox) string, box domain.BoundingBox, policy RetryPolicy) ([]element, error) {
	var union []element
	for _, quad := range box.Quadrants() {
		elements, err := c.fetchWithPolicy(ctx, build, quad, quadrantPolicy(policy))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// A failed quadrant is partial coverage, not a failed area.
			c.logger.Warn("overpass quadrant fetch failed, continuing", "box", quad, "error", err)
			continue
		}
		union = append(union, elements...)
	}
	return union, nil
}

func (c *Client) post(ctx context.Context, query string) ([]element, int, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("overpass query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	var body struct {
		Elements []element `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode overpass response: %w", err)
	}
	return body.Elements, resp.StatusCode, nil
}

func (c *Client) trailQuery(box domain.BoundingBox) string {
	bbox := formatBBox(box)
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  way["highway"~"^(path|footway|track)$"]["name"](%s);
  relation["route"="hiking"]["name"](%s);
);
out tags geom;`, int(c.serverTimeout.Seconds()), bbox, bbox)
}

func (c *Client) campgroundQuery(box domain.BoundingBox) string {
	bbox := formatBBox(box)
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  node["tourism"="camp_site"]["name"](%s);
  way["tourism"="camp_site"]["name"](%s);
);
out tags center;`, int(c.serverTimeout.Seconds()), bbox, bbox)
}

func (c *Client) trailFromElement(regionCode string, area domain.SearchArea, el element) domain.Trail {
	seg := domain.RawSegment{
		Name:     el.Tags["name"],
		SACScale: el.Tags["sac_scale"],
		Source:   domain.SourceOSM,
		NativeID: el.ID,
		RefURL:   fmt.Sprintf("%s/%s/%d", osmBaseURL, el.Type, el.ID),
	}
	if l := domain.ParseDistanceTag(el.Tags["distance"]); l != nil {
		seg.LengthMiles = *l
	}
	for _, p := range el.Geometry {
		seg.Points = append(seg.Points, domain.GeoPoint{Lat: p.Lat, Lon: p.Lon})
	}

	trailType := "hiking"
	t := domain.Trail{
		ID:         domain.WayTrailID(regionCode, el.ID),
		Name:       strings.TrimSpace(seg.Name),
		RegionCode: regionCode,
		AreaID:     area.ID,
		AreaName:   area.Name,
		Difficulty: domain.DifficultyFromSACScale(seg.SACScale),
		TrailType:  &trailType,
		Geometry:   seg.Points,
		RefURL:     &seg.RefURL,
		Source:     domain.SourceOSM,
		LastSynced: c.clock.Now().UTC(),
	}
	if seg.LengthMiles > 0 {
		l := seg.LengthMiles
		t.LengthMiles = &l
	}
	if len(t.Geometry) > 0 {
		t.Lat = t.Geometry[0].Lat
		t.Lon = t.Geometry[0].Lon
	} else {
		t.Lat = area.Center.Lat
		t.Lon = area.Center.Lon
	}
	return t
}

func campgroundFromElement(regionCode string, area domain.SearchArea, el element, name string) domain.Campground {
	camp := domain.Campground{
		ID:         domain.CampgroundID(regionCode, el.ID),
		Name:       name,
		RegionCode: regionCode,
		AreaID:     area.ID,
		AreaName:   area.Name,
		Lat:        el.Lat,
		Lon:        el.Lon,
		Source:     domain.SourceOSM,
	}
	if el.Center != nil {
		camp.Lat = el.Center.Lat
		camp.Lon = el.Center.Lon
	}
	if camp.Lat == 0 && camp.Lon == 0 {
		camp.Lat = area.Center.Lat
		camp.Lon = area.Center.Lon
	}
	camp.Fee = tagPtr(el.Tags, "fee")
	camp.Reservation = tagPtr(el.Tags, "reservation")
	camp.Website = tagPtr(el.Tags, "website")
	return camp
}

func tagPtr(tags map[string]string, key string) *string {
	v, ok := tags[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func formatBBox(b domain.BoundingBox) string {
	return strings.Join([]string{
		formatCoord(b.South), formatCoord(b.West), formatCoord(b.North), formatCoord(b.East),
	}, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Overpass response element. Ways carry inline polyline geometry when the
// query uses "out geom"; "out center" elements carry a representative center.
type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []elementPoint    `json:"geometry"`
	Center   *elementPoint     `json:"center"`
	Lat      float64           `json:"lat"` // nodes only
	Lon      float64           `json:"lon"`
}

type elementPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
