package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

// trailRow is the relational shape of a catalog trail. Identity is the
// natural key (region/area/name or region/native-id, prebuilt by the domain
// layer), so conflict resolution happens on the primary key.
type trailRow struct {
	ID          string `gorm:"primaryKey;size:255"`
	Name        string `gorm:"not null"`
	RegionCode  string `gorm:"size:8;index:idx_trails_region_area"`
	AreaID      string `gorm:"size:64;index:idx_trails_region_area"`
	AreaName    string
	LengthMiles *float64 `gorm:"type:decimal(7,2)"`
	Difficulty  *string  `gorm:"size:16"`
	TrailType   *string  `gorm:"size:32"`
	Lat         float64  `gorm:"type:decimal(9,6)"`
	Lon         float64  `gorm:"type:decimal(9,6)"`
	Geometry    *string  // JSON-serialized point sequence
	RefURL      *string
	Source      string `gorm:"size:16"`
	LastSynced  time.Time
}

func (trailRow) TableName() string {
	return "trails"
}

type campgroundRow struct {
	ID          string `gorm:"primaryKey;size:255"`
	Name        string `gorm:"not null"`
	RegionCode  string `gorm:"size:8;index:idx_campgrounds_region_area"`
	AreaID      string `gorm:"size:64;index:idx_campgrounds_region_area"`
	AreaName    string
	Lat         float64 `gorm:"type:decimal(9,6)"`
	Lon         float64 `gorm:"type:decimal(9,6)"`
	Fee         *string `gorm:"size:64"`
	Reservation *string `gorm:"size:64"`
	Website     *string
	Source      string `gorm:"size:16"`
	LastSynced  time.Time
}

func (campgroundRow) TableName() string {
	return "campgrounds"
}

func rowFromTrail(t domain.Trail, syncedAt time.Time) (trailRow, error) {
	row := trailRow{
		ID:          t.ID,
		Name:        t.Name,
		RegionCode:  t.RegionCode,
		AreaID:      t.AreaID,
		AreaName:    t.AreaName,
		LengthMiles: t.LengthMiles,
		Lat:         t.Lat,
		Lon:         t.Lon,
		RefURL:      t.RefURL,
		Source:      t.Source,
		LastSynced:  syncedAt,
	}
	if t.Difficulty != nil {
		d := string(*t.Difficulty)
		row.Difficulty = &d
	}
	row.TrailType = t.TrailType

	geom, err := encodeGeometry(t.Geometry)
	if err != nil {
		return trailRow{}, err
	}
	row.Geometry = geom
	return row, nil
}

func trailFromRow(row trailRow) (domain.Trail, error) {
	t := domain.Trail{
		ID:          row.ID,
		Name:        row.Name,
		RegionCode:  row.RegionCode,
		AreaID:      row.AreaID,
		AreaName:    row.AreaName,
		LengthMiles: row.LengthMiles,
		TrailType:   row.TrailType,
		Lat:         row.Lat,
		Lon:         row.Lon,
		RefURL:      row.RefURL,
		Source:      row.Source,
		LastSynced:  row.LastSynced,
	}
	if row.Difficulty != nil {
		d := domain.Difficulty(*row.Difficulty)
		t.Difficulty = &d
	}
	if row.Geometry != nil {
		if err := json.Unmarshal([]byte(*row.Geometry), &t.Geometry); err != nil {
			return domain.Trail{}, fmt.Errorf("decode geometry for %s: %w", row.ID, err)
		}
	}
	return t, nil
}

func rowFromCampground(c domain.Campground, syncedAt time.Time) campgroundRow {
	return campgroundRow{
		ID:          c.ID,
		Name:        c.Name,
		RegionCode:  c.RegionCode,
		AreaID:      c.AreaID,
		AreaName:    c.AreaName,
		Lat:         c.Lat,
		Lon:         c.Lon,
		Fee:         c.Fee,
		Reservation: c.Reservation,
		Website:     c.Website,
		Source:      c.Source,
		LastSynced:  syncedAt,
	}
}

// encodeGeometry serializes a point sequence, or nil when there is none so
// the upsert's COALESCE keeps any previously-stored geometry.
func encodeGeometry(points []domain.GeoPoint) (*string, error) {
	if len(points) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	s := string(data)
	return &s, nil
}
