// Package geo implements great-circle distance predicates over WGS84
// coordinates: exact Haversine containment plus an approximate bounding
// box used to shrink candidate sets before the exact test.
package geo

import (
	"fmt"
	"math"

	"github.com/homeseek/homeseek/engine/domain"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
	EarthRadiusKm = 6371.0088

	// kmPerLatDegree is the small-angle approximation for one degree of
	// latitude; longitude degrees shrink with cos(lat).
	kmPerLatDegree = 111.32
)

// Point is a (longitude, latitude) pair in WGS84 degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point lies in the legal coordinate ranges.
func (p Point) Valid() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// Box is an axis-aligned bounding box in degrees.
type Box struct {
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether p falls inside the box. This is the cheap
// pre-filter; Within is the authoritative test.
func (b Box) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon &&
		p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Distance returns the Haversine great-circle distance between a and b in
// kilometers.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Within reports whether the distance between a and b is at most radiusKm,
// and returns the computed distance. Degenerate inputs (non-positive
// radius, out-of-range coordinates) fail with ErrInvalidGeoInput; callers
// must not proceed with geo ranking after a failed predicate.
func Within(a, b Point, radiusKm float64) (bool, float64, error) {
	if radiusKm <= 0 {
		return false, 0, fmt.Errorf("geo: radius %g km: %w", radiusKm, domain.ErrInvalidGeoInput)
	}
	if !a.Valid() {
		return false, 0, fmt.Errorf("geo: point (%g, %g): %w", a.Lon, a.Lat, domain.ErrInvalidGeoInput)
	}
	if !b.Valid() {
		return false, 0, fmt.Errorf("geo: point (%g, %g): %w", b.Lon, b.Lat, domain.ErrInvalidGeoInput)
	}

	d := Distance(a, b)
	return d <= radiusKm, d, nil
}

// BoundingBox derives the axis-aligned box enclosing the circle around
// center. The box over-approximates the circle, so it is only ever used to
// prune candidates ahead of the exact Haversine check.
func BoundingBox(center Point, radiusKm float64) (Box, error) {
	if radiusKm <= 0 {
		return Box{}, fmt.Errorf("geo: radius %g km: %w", radiusKm, domain.ErrInvalidGeoInput)
	}
	if !center.Valid() {
		return Box{}, fmt.Errorf("geo: center (%g, %g): %w", center.Lon, center.Lat, domain.ErrInvalidGeoInput)
	}

	latDelta := radiusKm / kmPerLatDegree

	// Longitude degrees shrink toward the poles. At the poles the cosine
	// vanishes and every longitude is in range.
	lonDelta := 180.0
	if cosLat := math.Cos(center.Lat * math.Pi / 180); cosLat > 1e-9 {
		lonDelta = radiusKm / (kmPerLatDegree * cosLat)
	}

	return Box{
		MinLon: math.Max(center.Lon-lonDelta, -180),
		MaxLon: math.Min(center.Lon+lonDelta, 180),
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
	}, nil
}
