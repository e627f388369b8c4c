package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64
	Lon float64
}

// Centroid calculates the arithmetic centroid of a set of points
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return Point{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// BoundingBox calculates the bounding box of a set of points
// Returns (minLat, minLon, maxLat, maxLon)
func BoundingBox(points []Point) (float64, float64, float64, float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon

	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
	}

	return minLat, minLon, maxLat, maxLon
}

// SegmentDistancesKm returns, for each point, the distance in km from the
// previous point. The first entry has no predecessor and is NaN.
func SegmentDistancesKm(points []Point) []float64 {
	out := make([]float64, len(points))
	for i := range points {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = DistanceKm(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return out
}

// PathLengthKm calculates the total length of a path in kilometres
func PathLengthKm(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return total
}

// Valid reports whether p is a finite position within latitude and
// longitude bounds
func (p Point) Valid() bool {
	return ValidPosition(p.Lat, p.Lon)
}

// ValidPosition reports whether lat is in [-90, 90] and lon in [-180, 180].
// NaN and infinities are invalid.
func ValidPosition(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ConvexHullAreaKm2 returns the area of the spherical convex hull of points
// in square kilometres. Invalid positions are ignored. Fewer than three
// distinct points, or collinear points, have zero area.
func ConvexHullAreaKm2(points []Point) float64 {
	query := s2.NewConvexHullQuery()
	var n int
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		query.AddPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)))
		n++
	}
	if n < 3 {
		return 0
	}

	hull := query.ConvexHull()
	if hull.NumVertices() < 3 {
		return 0
	}

	// A convex hull never exceeds a hemisphere; anything larger is a
	// degenerate loop whose signed area wrapped around.
	steradians := hull.Area()
	if steradians > 2*math.Pi {
		return 0
	}

	return steradians * EarthRadiusKm * EarthRadiusKm
}
