package domain

import (
	"errors"
	"fmt"
)

// Listing field validation sentinels, used by the import pipeline to
// classify row rejections.
var (
	ErrMissingID          = errors.New("missing or non-positive id")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrNegativePrice      = errors.New("negative price")
	ErrNegativeArea       = errors.New("negative area")
)

// ValidateListing checks a candidate listing row: the id must be positive,
// coordinates (when present) must be valid WGS84 degrees, and prices and
// area must be non-negative. Absent optional fields are fine.
func ValidateListing(l Listing) error {
	if l.ID <= 0 {
		return NewValidationError("id", fmt.Sprintf("%d", l.ID), ErrMissingID)
	}

	// Coordinates come as a pair; one half without the other is as unusable
	// as an out-of-range value.
	if (l.Lon == nil) != (l.Lat == nil) {
		return NewValidationError("coordinates", "partial pair", ErrInvalidCoordinates)
	}
	if l.HasCoordinates() {
		if *l.Lon < -180 || *l.Lon > 180 {
			return NewValidationError("lon", fmt.Sprintf("%g", *l.Lon), ErrInvalidCoordinates)
		}
		if *l.Lat < -90 || *l.Lat > 90 {
			return NewValidationError("lat", fmt.Sprintf("%g", *l.Lat), ErrInvalidCoordinates)
		}
	}

	if l.PriceTotal != nil && *l.PriceTotal < 0 {
		return NewValidationError("price_total", fmt.Sprintf("%g", *l.PriceTotal), ErrNegativePrice)
	}
	if l.PriceUnit != nil && *l.PriceUnit < 0 {
		return NewValidationError("price_unit", fmt.Sprintf("%g", *l.PriceUnit), ErrNegativePrice)
	}
	if l.AreaSqm != nil && *l.AreaSqm < 0 {
		return NewValidationError("area_sqm", fmt.Sprintf("%g", *l.AreaSqm), ErrNegativeArea)
	}

	return nil
}
