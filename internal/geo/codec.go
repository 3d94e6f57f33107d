// Package geo contains the location codec (grid spatial keys and great-circle
// distance) and the bucket samplers used to approximate a radius query.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultPrecision is the number of decimal digits kept per axis in a spatial key.
const DefaultPrecision = 5

// EarthRadiusMeters is the sphere radius used for distance and destination math.
const EarthRadiusMeters = 6378137.0

// keySeparator joins the latitude and longitude parts of a spatial key.
const keySeparator = ":"

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// ValidatePoint reports whether p is a finite coordinate inside the valid
// latitude [-90,90] and longitude [-180,180] ranges.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return fmt.Errorf("%w: latitude and longitude must be finite numbers", ErrInvalidCoordinate)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidCoordinate, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// SpatialKey returns the fixed-precision grid cell identifier of (lat, lon).
//
// The key is (lat+90) and (lon+180) rendered with precision decimal digits and
// joined by ":". It identifies a cell, not a region: neighbouring cells share
// no prefix and must be probed separately.
func SpatialKey(lat, lon float64, precision int) (string, error) {
	if err := ValidatePoint(Point{Latitude: lat, Longitude: lon}); err != nil {
		return "", err
	}
	if precision < 0 {
		precision = DefaultPrecision
	}
	latPart := strconv.FormatFloat(lat+90, 'f', precision, 64)
	lonPart := strconv.FormatFloat(lon+180, 'f', precision, 64)
	return latPart + keySeparator + lonPart, nil
}

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h marginally outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRange reports whether b lies within radiusMeters of a. The boundary is inclusive.
func WithinRange(a, b Point, radiusMeters float64) bool {
	return DistanceMeters(a, b) <= radiusMeters
}

// Destination returns the point reached by travelling distanceMeters from p
// along the initial bearing bearingDeg (clockwise from north).
func Destination(p Point, distanceMeters, bearingDeg float64) Point {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRadians(bearingDeg)
	lat1 := toRadians(p.Latitude)
	lon1 := toRadians(p.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{
		Latitude:  clamp(toDegrees(lat2), -90, 90),
		Longitude: normalizeLongitude(toDegrees(lon2)),
	}
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon < -180 {
		lon += 360
	}
	return lon
}
