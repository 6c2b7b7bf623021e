// Package geo provides coordinate validation and great-circle distance
// computation. It is pure: no I/O, no side effects, deterministic.
package geo

import (
	"math"

	dErrors "fieldwatch/pkg/domain-errors"
)

// earthRadiusMeters is the mean spherical Earth radius used by the haversine
// formula.
const earthRadiusMeters = 6371000.0

// Coordinate is a WGS84 position in floating-point degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinate is finite and within valid ranges:
// latitude in [-90, 90], longitude in [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return dErrors.New(dErrors.CodeInvalidInput, "coordinate must be finite")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "latitude %v out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "longitude %v out of range [-180, 180]", c.Longitude)
	}
	return nil
}

// DistanceMeters computes the great-circle distance between a and b using the
// haversine formula on a spherical Earth. Symmetric within floating-point
// tolerance; zero for identical points. Fails with an invalid_input domain
// error before any computation when either coordinate is out of range.
func DistanceMeters(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h))), nil
}
