// Package reconcile merges per-area fetch results across sources and against
// the previously-persisted catalog. Everything here is pure: state is scoped
// to one call, never shared across areas.
package reconcile

import (
	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

// Backfill is a geometry-only update for an already-persisted trail that
// currently lacks geometry. It never changes identity or any other field.
type Backfill struct {
	TrailID  string
	Geometry []domain.GeoPoint
}

// Result is the reconciler's output for one search area.
type Result struct {
	Trails    []domain.Trail
	Backfills []Backfill
}

// Merge produces the final upsert set for one area.
//
// Authoritative trails are inserted into the name-keyed working set first;
// their geometry is considered more reliable. A crowdsourced trail joins the
// set only when its name is new, with one exception: when the existing entry
// has no geometry and the crowdsourced one does, the crowdsourced geometry is
// attached to the existing entry instead of creating a duplicate.
//
// persisted is the area's previously-stored catalog (may be nil on a first
// run). A fresh trail whose normalized name already exists in the persisted
// catalog under a different identity is not upserted: if the persisted row
// lacks geometry and the fresh trail has some, the geometry is emitted as a
// backfill; otherwise the fresh trail is dropped as a duplicate.
func Merge(authoritative, crowdsourced, persisted []domain.Trail) Result {
	byName := make(map[string]*domain.Trail)
	var order []string

	add := func(t domain.Trail) {
		key := domain.NormalizeName(t.Name)
		if key == "" {
			return
		}
		existing, ok := byName[key]
		if !ok {
			copied := t
			byName[key] = &copied
			order = append(order, key)
			return
		}
		// Geometry enrichment is monotonic: attach, never replace.
		if len(existing.Geometry) == 0 && len(t.Geometry) > 0 {
			existing.Geometry = t.Geometry
			existing.Lat = t.Geometry[0].Lat
			existing.Lon = t.Geometry[0].Lon
		}
	}

	for _, t := range authoritative {
		add(t)
	}
	for _, t := range crowdsourced {
		add(t)
	}

	persistedByName := make(map[string]domain.Trail, len(persisted))
	for _, t := range persisted {
		persistedByName[domain.NormalizeName(t.Name)] = t
	}

	var result Result
	for _, key := range order {
		t := *byName[key]

		prior, known := persistedByName[key]
		if !known || prior.ID == t.ID {
			result.Trails = append(result.Trails, t)
			continue
		}

		// Same name, different identity: the trail already exists in the
		// store under the other source's id. Enrich it instead of writing a
		// duplicate row.
		if len(prior.Geometry) == 0 && len(t.Geometry) > 0 {
			result.Backfills = append(result.Backfills, Backfill{
				TrailID:  prior.ID,
				Geometry: t.Geometry,
			})
		}
	}
	return result
}
