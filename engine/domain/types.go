// Package domain defines core listing types, constants, and validation for
// the homeseek engine. It acts as the validation gate at pipeline entry points.
package domain

import (
	"fmt"
	"strings"
)

// Listing is the core real-estate entity. The id is caller-assigned and
// globally unique; inserting an existing id replaces the stored record.
type Listing struct {
	ID int64 `json:"id"`

	// WGS84 coordinates in degrees. Nil when the source row carried no
	// geocode; such listings never satisfy a geo predicate.
	Lon *float64 `json:"lon,omitempty"`
	Lat *float64 `json:"lat,omitempty"`

	// Numeric attributes. Nil means unknown, and unknown never matches a
	// range or equality filter.
	PriceTotal *float64 `json:"price_total,omitempty"` // total price, 10k units
	PriceUnit  *float64 `json:"price_unit,omitempty"`  // unit price per sqm
	AreaSqm    *float64 `json:"area_sqm,omitempty"`

	// Categorical attributes, exact-match filter targets.
	District    string `json:"district,omitempty"`
	Address     string `json:"address,omitempty"`
	Layout      string `json:"layout,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Renovation  string `json:"renovation,omitempty"`
	Elevator    string `json:"elevator,omitempty"`
	Parking     string `json:"parking,omitempty"`
	Floor       string `json:"floor,omitempty"`

	// Free-text descriptive fields, concatenated into a single semantic
	// document at import time.
	Name           string `json:"name,omitempty"`
	Features       string `json:"features,omitempty"`
	SellingPoints  string `json:"selling_points,omitempty"`
	SchoolDistrict string `json:"school_district,omitempty"`
	Preference     string `json:"preference,omitempty"`
	Surroundings   string `json:"surroundings,omitempty"`
	Tags           string `json:"tags,omitempty"`

	// Vector is the embedding derived from the text fields. It is owned by
	// the import pipeline and recomputed whenever the text fields change;
	// never user-settable.
	Vector []float32 `json:"-"`
}

// HasCoordinates reports whether the listing carries a geocode.
func (l Listing) HasCoordinates() bool {
	return l.Lon != nil && l.Lat != nil
}

// SemanticDocument concatenates the descriptive fields in a fixed order
// into the text that gets embedded. The order is part of the embedding
// contract: changing it changes every stored vector.
func (l Listing) SemanticDocument() string {
	var parts []string
	add := func(label, v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}

	add("name", l.Name)
	add("district", l.District)
	if l.AreaSqm != nil {
		parts = append(parts, fmt.Sprintf("area: %.1f sqm", *l.AreaSqm))
	}
	add("features", l.Features)
	add("selling points", l.SellingPoints)
	add("school district", l.SchoolDistrict)
	add("preference", l.Preference)
	add("surroundings", l.Surroundings)
	add("tags", l.Tags)
	add("layout", l.Layout)

	return strings.Join(parts, ". ")
}
