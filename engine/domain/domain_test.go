package domain

import (
	"errors"
	"strings"
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestValidateListing(t *testing.T) {
	valid := Listing{ID: 1, Name: "flat", Lon: fp(116.4), Lat: fp(39.9), PriceTotal: fp(500)}
	if err := ValidateListing(valid); err != nil {
		t.Fatalf("valid listing rejected: %v", err)
	}

	tests := []struct {
		name string
		l    Listing
		want error
	}{
		{"zero id", Listing{}, ErrMissingID},
		{"negative id", Listing{ID: -2}, ErrMissingID},
		{"lon without lat", Listing{ID: 1, Lon: fp(116.4)}, ErrInvalidCoordinates},
		{"lat without lon", Listing{ID: 1, Lat: fp(39.9)}, ErrInvalidCoordinates},
		{"lon out of range", Listing{ID: 1, Lon: fp(181), Lat: fp(39.9)}, ErrInvalidCoordinates},
		{"lat out of range", Listing{ID: 1, Lon: fp(116.4), Lat: fp(-91)}, ErrInvalidCoordinates},
		{"negative total price", Listing{ID: 1, PriceTotal: fp(-1)}, ErrNegativePrice},
		{"negative unit price", Listing{ID: 1, PriceUnit: fp(-0.5)}, ErrNegativePrice},
		{"negative area", Listing{ID: 1, AreaSqm: fp(-10)}, ErrNegativeArea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateListing(tt.l)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err %T is not a ValidationError", err)
			}
		})
	}
}

func TestValidateListingOptionalFieldsAbsent(t *testing.T) {
	// A bare id is a valid row; everything else is optional.
	if err := ValidateListing(Listing{ID: 42}); err != nil {
		t.Fatalf("minimal listing rejected: %v", err)
	}
}

func TestHasCoordinates(t *testing.T) {
	if (Listing{ID: 1, Lon: fp(1)}).HasCoordinates() {
		t.Fatal("half a pair is not a geocode")
	}
	if !(Listing{ID: 1, Lon: fp(1), Lat: fp(2)}).HasCoordinates() {
		t.Fatal("full pair should count")
	}
}

func TestSemanticDocumentOrder(t *testing.T) {
	l := Listing{
		ID:             1,
		Name:           "Sunny Garden 2-2",
		District:       "chaoyang",
		AreaSqm:        fp(88.5),
		Features:       "south facing",
		SellingPoints:  "renovated kitchen",
		SchoolDistrict: "no.2 primary",
		Preference:     "family",
		Surroundings:   "park nearby",
		Tags:           "metro",
		Layout:         "2b2b",
	}
	doc := l.SemanticDocument()

	// The field order is fixed; stored vectors depend on it.
	fields := []string{
		"name: Sunny Garden 2-2",
		"district: chaoyang",
		"area: 88.5 sqm",
		"features: south facing",
		"selling points: renovated kitchen",
		"school district: no.2 primary",
		"preference: family",
		"surroundings: park nearby",
		"tags: metro",
		"layout: 2b2b",
	}
	last := -1
	for _, f := range fields {
		idx := strings.Index(doc, f)
		if idx < 0 {
			t.Fatalf("document missing %q:\n%s", f, doc)
		}
		if idx < last {
			t.Fatalf("field %q out of order:\n%s", f, doc)
		}
		last = idx
	}
}

func TestSemanticDocumentSkipsEmptyFields(t *testing.T) {
	doc := Listing{ID: 1, Name: "flat"}.SemanticDocument()
	if doc != "name: flat" {
		t.Fatalf("doc = %q", doc)
	}
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := NewValidationError("lat", "95", ErrInvalidCoordinates)
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatal("wrapped sentinel lost")
	}
	if !strings.Contains(err.Error(), "lat") {
		t.Fatalf("message missing field: %s", err.Error())
	}
}
