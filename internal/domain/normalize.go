package domain

import (
	"strconv"
	"strings"
)

// placeholderNames are attribute values the authoritative source uses when a
// segment has no real name. Segments carrying one are discarded.
var placeholderNames = map[string]bool{
	"":        true,
	"unknown": true,
	"n/a":     true,
}

// genericWayNames are crowdsourced names too generic to identify a trail.
var genericWayNames = map[string]bool{
	"path":    true,
	"trail":   true,
	"track":   true,
	"road":    true,
	"unknown": true,
}

const kmPerMile = 1.609344

// NormalizeName lowercases and trims a trail name for identity comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Slug converts a trail name into a URL/key-safe identifier fragment.
func Slug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range NormalizeName(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// UsableSegmentName reports whether an authoritative segment name is a real
// name rather than a placeholder.
func UsableSegmentName(name string) bool {
	return !placeholderNames[NormalizeName(name)]
}

// UsableWayName reports whether a crowdsourced way name identifies a trail:
// at least 4 characters and not a generic term.
func UsableWayName(name string) bool {
	n := NormalizeName(name)
	return len(n) >= 4 && !genericWayNames[n]
}

// DifficultyFromTrailClass maps the authoritative ordinal trail-class
// attribute to the three-level scheme. Classes 1-2 are maintained, gentle
// trails; class 3 is a typical backcountry trail; classes 4-5 are primitive
// or strenuous. Values outside 1-5 leave difficulty unset.
func DifficultyFromTrailClass(class int) *Difficulty {
	switch class {
	case 1, 2:
		return difficultyPtr(DifficultyEasy)
	case 3:
		return difficultyPtr(DifficultyModerate)
	case 4, 5:
		return difficultyPtr(DifficultyHard)
	default:
		return nil
	}
}

// DifficultyFromSACScale maps the OSM sac_scale hiking-difficulty tag to the
// three-level scheme. Everything at or above demanding_mountain_hiking lands
// in the hard tier. Unknown values leave difficulty unset.
func DifficultyFromSACScale(scale string) *Difficulty {
	switch NormalizeName(scale) {
	case "hiking":
		return difficultyPtr(DifficultyEasy)
	case "mountain_hiking":
		return difficultyPtr(DifficultyModerate)
	case "demanding_mountain_hiking", "alpine_hiking",
		"demanding_alpine_hiking", "difficult_alpine_hiking":
		return difficultyPtr(DifficultyHard)
	default:
		return nil
	}
}

// ParseDistanceTag parses an OSM free-text distance tag into miles.
// A bare number follows the OSM convention of kilometers. Explicit "km" and
// "mi" unit suffixes are honored. Non-numeric values return nil and the
// record's length stays unset.
func ParseDistanceTag(tag string) *float64 {
	s := strings.ToLower(strings.TrimSpace(tag))
	if s == "" {
		return nil
	}

	unit := "km"
	switch {
	case strings.HasSuffix(s, "km"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "km"))
	case strings.HasSuffix(s, "mi"):
		unit = "mi"
		s = strings.TrimSpace(strings.TrimSuffix(s, "mi"))
	}

	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	if unit == "km" {
		v /= kmPerMile
	}
	return &v
}

// MergeSegments deduplicates one source's result set by normalized name.
// All segments sharing a name become one Trail: point lists are concatenated
// in input order, lengths are summed, and the first segment's first point is
// the representative point (area center when no segment carries geometry).
// Segments with placeholder names are discarded. Input order of first
// appearance is preserved in the output.
func MergeSegments(regionCode string, area SearchArea, segments []RawSegment) []Trail {
	byName := make(map[string]*Trail)
	var order []string

	for _, seg := range segments {
		if !UsableSegmentName(seg.Name) {
			continue
		}
		key := NormalizeName(seg.Name)

		t, ok := byName[key]
		if !ok {
			t = &Trail{
				ID:         AreaTrailID(regionCode, area.ID, seg.Name),
				Name:       strings.TrimSpace(seg.Name),
				RegionCode: regionCode,
				AreaID:     area.ID,
				AreaName:   area.Name,
				Source:     seg.Source,
				LastSynced: clock.Now().UTC(),
			}
			byName[key] = t
			order = append(order, key)
		}

		t.Geometry = append(t.Geometry, seg.Points...)

		if seg.LengthMiles > 0 {
			total := seg.LengthMiles
			if t.LengthMiles != nil {
				total += *t.LengthMiles
			}
			t.LengthMiles = &total
		}
		if t.Difficulty == nil {
			t.Difficulty = DifficultyFromTrailClass(seg.TrailClass)
		}
		if t.TrailType == nil && seg.TrailType != "" {
			typ := seg.TrailType
			t.TrailType = &typ
		}
		if t.RefURL == nil && seg.RefURL != "" {
			u := seg.RefURL
			t.RefURL = &u
		}
	}

	trails := make([]Trail, 0, len(order))
	for _, key := range order {
		t := byName[key]
		if len(t.Geometry) > 0 {
			t.Lat = t.Geometry[0].Lat
			t.Lon = t.Geometry[0].Lon
		} else {
			t.Lat = area.Center.Lat
			t.Lon = area.Center.Lon
		}
		trails = append(trails, *t)
	}
	return trails
}

func difficultyPtr(d Difficulty) *Difficulty {
	return &d
}
