// Package domain models NASA FIRMS satellite fire detections and the fire
// events built from them.
//
// # Data Source
//
// Detections originate from the NASA FIRMS area API
// (https://firms.modaps.eosdis.nasa.gov/api/area/csv), which serves
// near-real-time thermal anomalies from four satellite feeds: VIIRS on
// Suomi NPP, NOAA-20 and NOAA-21, and MODIS on Aqua/Terra. Each CSV row is
// one thermal anomaly with WGS-84 coordinates, two brightness-temperature
// channels, fire radiative power (FRP, in MW), a confidence tier, the
// acquisition date and time (UTC), a day/night flag, and the satellite tag.
//
// # FIRMS Conventions
//
// Confidence encoding differs by instrument:
//
//	VIIRS: categorical "low" / "nominal" / "high". Only nominal and high
//	  detections are ingested.
//	MODIS: integer percentage 0-100. Detections below 30 are discarded.
//
// Acquisition time is HHMM in 24-hour UTC notation, e.g. "0142" = 01:42.
// Three-digit values are zero-padded. Combined with acq_date it yields the
// capture instant stored on the Detection.
//
// Brightness at or below 300 K is treated as noise and filtered at ingestion.
//
// # Identity
//
// A Detection is identified by (source, coordinate, acquisition instant).
// Near-duplicates — the same overpass re-reported within the configured
// spatial and temporal tolerances — are recognized by the dedup stage,
// never merged. Detections are immutable once stored.
//
// # Severity
//
// Fire event severity derives from detection count and peak FRP:
//
//	1-2 detections   low
//	3-5 detections   medium
//	6-9 detections   high
//	>=10 detections, or max FRP above the configured threshold: critical
//
// The FRP override takes precedence regardless of count.
//
// # Grid Cells
//
// The historical-repeat signal buckets the map into 0.01-degree (~1 km)
// cells; [GridCell] produces the cell key for a coordinate. Prior fires in
// the same cell within the lookback horizon raise the intentionality score.
package domain
