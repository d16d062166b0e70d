// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	dErrors "apb/pkg/domain-errors"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks latitude and longitude ranges. Field names are reported
// relative to the enclosing location object.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return dErrors.Invalid("lat", "latitude must be between -90 and 90")
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return dErrors.Invalid("lng", "longitude must be between -180 and 180")
	}
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	phi1, phi2 := radians(a.Lat), radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lng - a.Lng)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Rounding can push h marginally past 1 for antipodal points.
	h = math.Min(1, h)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Within reports whether b lies within radiusKm of a.
func Within(a, b Coordinate, radiusKm float64) bool {
	return Distance(a, b) <= radiusKm
}

// Bounds is an axis-aligned lat/lng box. When the box crosses the
// antimeridian MinLng is greater than MaxLng.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether c falls inside the box.
func (b Bounds) Contains(c Coordinate) bool {
	if c.Lat < b.MinLat || c.Lat > b.MaxLat {
		return false
	}
	if b.MinLng <= b.MaxLng {
		return c.Lng >= b.MinLng && c.Lng <= b.MaxLng
	}
	return c.Lng >= b.MinLng || c.Lng <= b.MaxLng
}

// WrapsAntimeridian reports whether the longitude range crosses ±180.
func (b Bounds) WrapsAntimeridian() bool {
	return b.MinLng > b.MaxLng
}

// BoundsAround returns a box that contains every point within radiusKm of
// origin. It is a superset: callers must still apply Distance.
func BoundsAround(origin Coordinate, radiusKm float64) Bounds {
	angular := radiusKm / EarthRadiusKm
	dLat := angular * 180 / math.Pi

	minLat := origin.Lat - dLat
	maxLat := origin.Lat + dLat
	if minLat <= -90 || maxLat >= 90 {
		return Bounds{
			MinLat: math.Max(minLat, -90),
			MaxLat: math.Min(maxLat, 90),
			MinLng: -180,
			MaxLng: 180,
		}
	}

	ratio := math.Sin(angular) / math.Cos(radians(origin.Lat))
	if ratio >= 1 {
		return Bounds{MinLat: minLat, MaxLat: maxLat, MinLng: -180, MaxLng: 180}
	}
	dLng := math.Asin(ratio) * 180 / math.Pi
	minLng := origin.Lng - dLng
	maxLng := origin.Lng + dLng
	if minLng < -180 {
		minLng += 360
	}
	if maxLng > 180 {
		maxLng -= 360
	}
	return Bounds{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
}
