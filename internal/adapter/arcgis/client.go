// Package arcgis fetches trail segments from the authoritative state GIS
// feature service. Raw features are parsed into typed segments at this
// boundary; nothing downstream inspects the source's wire shapes.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

// Client queries the GIS trail layer for segments intersecting a bounding box.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GIS feature-service client. baseURL points at the trail
// layer, e.g. ".../MapServer/0".
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchTrails issues one bounded spatial query for the area and returns the
// per-name merged trails. A non-success HTTP status or a service-level error
// degrades to an empty result with a log line; only transport failures are
// returned as errors.
func (c *Client) FetchTrails(ctx context.Context, regionCode string, area domain.SearchArea) ([]domain.Trail, error) {
	segments, err := c.fetchSegments(ctx, area)
	if err != nil {
		return nil, err
	}
	return domain.MergeSegments(regionCode, area, segments), nil
}

func (c *Client) fetchSegments(ctx context.Context, area domain.SearchArea) ([]domain.RawSegment, error) {
	envelope, err := json.Marshal(map[string]any{
		"xmin":             area.Bounds.West,
		"ymin":             area.Bounds.South,
		"xmax":             area.Bounds.East,
		"ymax":             area.Bounds.North,
		"spatialReference": map[string]int{"wkid": 4326},
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	params := url.Values{
		"f":              {"json"},
		"where":          {"1=1"},
		"geometry":       {string(envelope)},
		"geometryType":   {"esriGeometryEnvelope"},
		"inSR":           {"4326"},
		"outSR":          {"4326"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"outFields":      {"TRAIL_NAME,GIS_MILES,TRAIL_CLASS,TRAIL_TYPE,HIKER_PEDESTRIAN"},
		"returnGeometry": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gis query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("gis query returned non-success status, skipping area",
			"area", area.ID,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, nil
	}

	var fr featureResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode gis response: %w", err)
	}

	// ArcGIS reports layer errors inside a 200 response.
	if fr.Error != nil {
		c.logger.Warn("gis query returned service error, skipping area",
			"area", area.ID,
			"code", fr.Error.Code,
			"message", fr.Error.Message,
		)
		return nil, nil
	}

	segments := make([]domain.RawSegment, 0, len(fr.Features))
	for _, f := range fr.Features {
		segments = append(segments, segmentFromFeature(f))
	}
	return segments, nil
}

func segmentFromFeature(f feature) domain.RawSegment {
	seg := domain.RawSegment{
		Name:        f.Attributes.Name,
		LengthMiles: f.Attributes.Miles,
		TrailClass:  int(f.Attributes.TrailClass),
		Source:      domain.SourceGIS,
	}
	if f.Attributes.HikerPedestrian != "" {
		seg.TrailType = "hiking"
	}
	if f.Geometry != nil {
		for _, path := range f.Geometry.Paths {
			for _, pt := range path {
				if len(pt) < 2 {
					continue
				}
				// ArcGIS paths are x,y order: lon first.
				seg.Points = append(seg.Points, domain.GeoPoint{Lat: pt[1], Lon: pt[0]})
			}
		}
	}
	return seg
}

// GIS feature-service response types.

type featureResponse struct {
	Features []feature     `json:"features"`
	Error    *serviceError `json:"error"`
}

type serviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type feature struct {
	Attributes attributes `json:"attributes"`
	Geometry   *geometry  `json:"geometry"`
}

type attributes struct {
	Name            string  `json:"TRAIL_NAME"`
	Miles           float64 `json:"GIS_MILES"`
	TrailClass      float64 `json:"TRAIL_CLASS"`
	TrailType       string  `json:"TRAIL_TYPE"`
	HikerPedestrian string  `json:"HIKER_PEDESTRIAN"`
}

type geometry struct {
	Paths [][][]float64 `json:"paths"`
}
