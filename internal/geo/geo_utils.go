package geo

import (
	"math"

	"github.com/golang/geo/s2"
	"mapclient.gnet.app/internal/models"
)

// earthRadiusInKm represents the mean radius of the Earth in kilometers.
//
// This value (6,371 km) is the Earth's volumetric mean radius, which is
// commonly used for general geospatial calculations and spherical approximations.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusInKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in kilometers.
//
// s2.LatLng.Distance evaluates the haversine formula, so the result is
// symmetric and DistanceKm(a, a) is exactly 0.
func DistanceKm(a, b models.LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * earthRadiusInKm
}

// Bearing returns the initial compass bearing from -> to in degrees, in [0, 360).
//
// Identical points degenerate to atan2(0, 0) which yields 0; callers get a
// stable value rather than an error.
func Bearing(from, to models.LatLng) float64 {
	phi1 := degreesToRadians(from.Latitude)
	phi2 := degreesToRadians(to.Latitude)
	deltaLambda := degreesToRadians(to.Longitude - from.Longitude)

	y := math.Sin(deltaLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	bearing := math.Mod(radiansToDegrees(math.Atan2(y, x))+360, 360)
	if bearing >= 360 {
		bearing = 0
	}
	return bearing
}

// Nearest returns the point closest to target by linear scan.
// On exact ties the first point in iteration order wins.
// ok is false when points is empty.
func Nearest(points []models.Point, target models.LatLng) (nearest models.Point, distanceKm float64, ok bool) {
	if len(points) == 0 {
		return models.Point{}, 0, false
	}

	nearest = points[0]
	distanceKm = DistanceKm(target, points[0].Location())
	for _, p := range points[1:] {
		if d := DistanceKm(target, p.Location()); d < distanceKm {
			nearest = p
			distanceKm = d
		}
	}
	return nearest, distanceKm, true
}

// IsValidLatLon returns true if the given latitude and longitude values
// are finite and fall within the valid geographic coordinate bounds.
//
// Latitude must be between -90 and 90 degrees, and longitude must be
// between -180 and 180 degrees.
//
// Note: unlike a data-quality check this accepts (0,0). Points with missing
// coordinates are stored at (0,0) on purpose and must stay tappable.
func IsValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

func radiansToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}
