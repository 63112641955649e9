package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Data source tags recorded on persisted rows.
const (
	SourceGIS = "state_gis" // authoritative government GIS trail layer
	SourceOSM = "osm"       // crowdsourced OpenStreetMap ways/relations
)

// Difficulty is the three-level classification shared by both sources.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
)

// GeoPoint is a WGS-84 latitude/longitude coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// BoundingBox is a geographic envelope. Invariant: South < North, West < East.
type BoundingBox struct {
	South float64 `json:"south" yaml:"south"`
	West  float64 `json:"west"  yaml:"west"`
	North float64 `json:"north" yaml:"north"`
	East  float64 `json:"east"  yaml:"east"`
}

// Validate checks the corner ordering invariant.
func (b BoundingBox) Validate() error {
	if b.South >= b.North {
		return fmt.Errorf("bounding box: south %v must be less than north %v", b.South, b.North)
	}
	if b.West >= b.East {
		return fmt.Errorf("bounding box: west %v must be less than east %v", b.West, b.East)
	}
	return nil
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.South + b.North) / 2,
		Lon: (b.West + b.East) / 2,
	}
}

// Quadrants splits the box into four equal quadrants at the midpoint latitude
// and longitude. Used by the crowdsourced fetcher when a full-box query times
// out server-side.
func (b BoundingBox) Quadrants() [4]BoundingBox {
	c := b.Center()
	return [4]BoundingBox{
		{South: b.South, West: b.West, North: c.Lat, East: c.Lon}, // SW
		{South: b.South, West: c.Lon, North: c.Lat, East: b.East}, // SE
		{South: c.Lat, West: b.West, North: b.North, East: c.Lon}, // NW
		{South: c.Lat, West: c.Lon, North: b.North, East: b.East}, // NE
	}
}

// SearchArea is the unit of work for one fetch/reconcile/persist cycle.
// Loaded once from the region catalog and never mutated.
type SearchArea struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Center GeoPoint    `yaml:"center"`
	Bounds BoundingBox `yaml:"bounds"`
}

// RawSegment is a single geometry fragment from either source. It exists only
// within one fetch call; named trails are assembled from segments before
// anything leaves the fetcher.
type RawSegment struct {
	Name        string
	LengthMiles float64 // 0 = not reported
	TrailClass  int     // authoritative ordinal class, 0 = not reported
	SACScale    string  // crowdsourced sac_scale tag, "" = not tagged
	TrailType   string
	Points      []GeoPoint
	Source      string
	NativeID    int64 // crowdsourced way/relation id
	RefURL      string
}

// Trail is the persisted catalog entity. Nullable enrichment fields use
// pointers so the upsert layer can distinguish "not reported" from zero.
type Trail struct {
	ID          string
	Name        string
	RegionCode  string
	AreaID      string
	AreaName    string
	LengthMiles *float64
	Difficulty  *Difficulty
	TrailType   *string
	Lat         float64
	Lon         float64
	Geometry    []GeoPoint
	RefURL      *string
	Source      string
	LastSynced  time.Time
}

// Campground is a named camping site from the crowdsourced source.
type Campground struct {
	ID          string
	Name        string
	RegionCode  string
	AreaID      string
	AreaName    string
	Lat         float64
	Lon         float64
	Fee         *string
	Reservation *string
	Website     *string
	Source      string
	LastSynced  time.Time
}

// AreaTrailID builds the stable identity for an authoritative-source trail:
// region + area + normalized name. Re-ingesting the same trail updates the
// same row instead of duplicating it.
func AreaTrailID(regionCode, areaID, name string) string {
	return regionCode + "/" + areaID + "/" + Slug(name)
}

// WayTrailID builds the stable identity for a crowdsourced-source trail from
// the source-native numeric id. Names are not guaranteed unique across
// unrelated ways, so the native id anchors identity instead.
func WayTrailID(regionCode string, nativeID int64) string {
	return regionCode + "/osm/" + strconv.FormatInt(nativeID, 10)
}

// CampgroundID builds the stable identity for a campground row.
func CampgroundID(regionCode string, nativeID int64) string {
	return regionCode + "/osm-camp/" + strconv.FormatInt(nativeID, 10)
}
