package domain

import (
	"fmt"
	"math"
)

const earthRadiusM = 6_371_000.0

// Haversine returns the great-circle distance in meters between two
// WGS-84 points.
func Haversine(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PointToSegment returns the minimum distance in meters from point p to the
// segment between a and b. The point is projected onto the segment in a local
// Cartesian approximation, clamped to the endpoints, and the final distance
// is great-circle.
func PointToSegment(p, a, b Geo) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	cosLat := math.Cos(midLat)

	mPerDegLat := earthRadiusM * math.Pi / 180
	mPerDegLon := mPerDegLat * cosLat

	dx := (b.Lon - a.Lon) * mPerDegLon
	dy := (b.Lat - a.Lat) * mPerDegLat
	px := (p.Lon - a.Lon) * mPerDegLon
	py := (p.Lat - a.Lat) * mPerDegLat

	segLenSq := dx*dx + dy*dy
	if segLenSq < 1e-12 {
		return Haversine(p, a)
	}

	t := (px*dx + py*dy) / segLenSq
	t = math.Max(0, math.Min(1, t))

	nearest := Geo{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return Haversine(p, nearest)
}

// gridCellDeg is the side of a history grid cell, approximately 1 km of
// latitude.
const gridCellDeg = 0.01

// GridCell returns the key of the ~1 km grid cell containing the coordinate.
// Coordinates are floored to the cell boundary so that every point in a cell
// maps to the same key.
func GridCell(g Geo) string {
	lat := math.Floor(g.Lat/gridCellDeg) * gridCellDeg
	lon := math.Floor(g.Lon/gridCellDeg) * gridCellDeg
	return fmt.Sprintf("%.2f:%.2f", lat, lon)
}

// BoundingBox is a [west, south, east, north] monitoring region.
type BoundingBox struct {
	West  float64 `yaml:"west" json:"west"`
	South float64 `yaml:"south" json:"south"`
	East  float64 `yaml:"east" json:"east"`
	North float64 `yaml:"north" json:"north"`
}

// Contains reports whether the coordinate lies inside the box.
func (b BoundingBox) Contains(g Geo) bool {
	return g.Lat >= b.South && g.Lat <= b.North && g.Lon >= b.West && g.Lon <= b.East
}
