// Package domain models hiking-trail catalog data assembled from two
// independent public sources.
//
// # Data Sources
//
// The authoritative source is a state GIS feature service (ArcGIS-style REST
// query). It returns trail *segments*: one named trail is frequently split
// into several geometry fragments, each with its own length attribute. The
// crowdsourced source is an Overpass-style OpenStreetMap query returning
// named ways and hiking-route relations with inline polyline geometry.
//
// # Naming Conventions
//
// Identity comparison always uses the normalized (lowercased, trimmed) name.
// The authoritative layer uses "Unknown" and "N/A" as placeholder names for
// unnamed connector segments; those never become catalog entries. On the
// crowdsourced side, names shorter than 4 characters or matching generic
// terms ("path", "trail", "track", "road") identify nothing and are dropped.
//
// # Attribute Encoding
//
// Trail class (authoritative):
//
//	Ordinal 1-5 per the USFS Trail Class matrix. 1-2 map to easy,
//	3 to moderate, 4-5 to hard. Anything else leaves difficulty unset.
//
// sac_scale (crowdsourced):
//
//	OSM hiking-scale tag. "hiking" → easy, "mountain_hiking" → moderate,
//	"demanding_mountain_hiking" and all alpine values → hard.
//
// distance (crowdsourced):
//
//	Free-text tag. Bare numbers are kilometers by OSM convention; explicit
//	"km"/"mi" suffixes are honored. Stored lengths are always miles.
//
// # Identity
//
// Authoritative trails key on region + search area + normalized name, since
// the GIS layer has no stable feature id across releases. Crowdsourced trails
// key on region + OSM way/relation id, since way names are not unique across
// unrelated trails. Both schemes are deterministic, so re-ingestion updates
// rows in place. See [AreaTrailID] and [WayTrailID].
package domain
