package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	EarthRadiusKm     = 6371.0    // Earth's mean radius in kilometers
	KmPerNauticalMile = 1.852
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return angle(lat1, lon1, lat2, lon2) * EarthRadiusMeters
}

// DistanceKm calculates the great-circle distance between two points in kilometers
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return angle(lat1, lon1, lat2, lon2) * EarthRadiusKm
}

func angle(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians()
}

// Bearing calculates the initial bearing (forward azimuth) from point 1 to point 2
// Returns bearing in degrees (0-360), where 0 is North, 90 is East, etc.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lonDiff := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(lonDiff) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lonDiff)

	bearingDeg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(bearingDeg+360, 360)
}

// KmhToKnots converts kilometres per hour to knots
func KmhToKnots(kmh float64) float64 {
	return kmh / KmPerNauticalMile
}

// CellLevel is the S2 cell level used to tag positions, roughly 1 km across
const CellLevel = 13

// CellToken returns the token of the S2 cell at level containing the point
func CellToken(lat, lon float64, level int) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level).ToToken()
}
