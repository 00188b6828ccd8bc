// Package filter evaluates structured attribute predicates over listings.
// The operator set is closed (equals, range, set membership) and evaluated
// by a single exhaustive dispatcher; there are no open-ended predicate
// strings. A field absent on a listing never matches: unknown is not a
// match, but it is not an error either.
package filter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/homeseek/homeseek/engine/domain"
)

// Operator is the closed set of predicate operators.
type Operator int

const (
	OpEquals Operator = iota
	OpRange
	OpSetMember
)

var opNames = map[Operator]string{
	OpEquals:    "eq",
	OpRange:     "range",
	OpSetMember: "in",
}

var opValues = map[string]Operator{
	"eq":    OpEquals,
	"range": OpRange,
	"in":    OpSetMember,
}

func (o Operator) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// MarshalJSON renders the operator as its wire name.
func (o Operator) MarshalJSON() ([]byte, error) {
	s, ok := opNames[o]
	if !ok {
		return nil, fmt.Errorf("filter: unknown operator %d", int(o))
	}
	return json.Marshal(s)
}

// UnmarshalJSON parses an operator wire name.
func (o *Operator) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	op, ok := opValues[s]
	if !ok {
		return fmt.Errorf("filter: unknown operator %q", s)
	}
	*o = op
	return nil
}

// Condition is one (field, operator, value) predicate. The value slot is
// split per operator: Equals for OpEquals, Min/Max for OpRange (either
// bound optional), Set for OpSetMember.
type Condition struct {
	Field  string   `json:"field"`
	Op     Operator `json:"op"`
	Equals string   `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Set    []string `json:"set,omitempty"`
}

// Canonical filterable field names.
const (
	FieldPriceTotal  = "price_total"
	FieldPriceUnit   = "price_unit"
	FieldAreaSqm     = "area_sqm"
	FieldDistrict    = "district"
	FieldLayout      = "layout"
	FieldOrientation = "orientation"
	FieldRenovation  = "renovation"
	FieldElevator    = "elevator"
	FieldParking     = "parking"
	FieldFloor       = "floor"
	FieldName        = "name"
)

// NumericField extracts a numeric attribute by canonical name. The second
// return is false when the field is unknown on this listing or not numeric.
func NumericField(l domain.Listing, name string) (float64, bool) {
	var v *float64
	switch name {
	case FieldPriceTotal:
		v = l.PriceTotal
	case FieldPriceUnit:
		v = l.PriceUnit
	case FieldAreaSqm:
		v = l.AreaSqm
	default:
		return 0, false
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// StringField extracts a categorical attribute by canonical name. The
// second return is false when the field name is not categorical or the
// value is empty (unknown).
func StringField(l domain.Listing, name string) (string, bool) {
	var v string
	switch name {
	case FieldDistrict:
		v = l.District
	case FieldLayout:
		v = l.Layout
	case FieldOrientation:
		v = l.Orientation
	case FieldRenovation:
		v = l.Renovation
	case FieldElevator:
		v = l.Elevator
	case FieldParking:
		v = l.Parking
	case FieldFloor:
		v = l.Floor
	case FieldName:
		v = l.Name
	default:
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// Matches reports whether the listing satisfies every condition. An empty
// condition list matches everything.
func Matches(l domain.Listing, conds []Condition) bool {
	for _, c := range conds {
		if !matchOne(l, c) {
			return false
		}
	}
	return true
}

func matchOne(l domain.Listing, c Condition) bool {
	switch c.Op {
	case OpEquals:
		if s, ok := StringField(l, c.Field); ok {
			return s == c.Equals
		}
		if n, ok := NumericField(l, c.Field); ok {
			want, err := strconv.ParseFloat(c.Equals, 64)
			return err == nil && n == want
		}
		return false

	case OpRange:
		n, ok := NumericField(l, c.Field)
		if !ok {
			return false
		}
		if c.Min != nil && n < *c.Min {
			return false
		}
		if c.Max != nil && n > *c.Max {
			return false
		}
		return true

	case OpSetMember:
		s, ok := StringField(l, c.Field)
		if !ok {
			return false
		}
		for _, member := range c.Set {
			if s == member {
				return true
			}
		}
		return false

	default:
		return false
	}
}
