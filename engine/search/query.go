package search

import (
	"strings"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
)

// Query is a transient search request. At least one of text, geo center,
// or attribute filters must be present.
type Query struct {
	Text     string             `json:"text,omitempty"`
	Center   *geo.Point         `json:"geo_center,omitempty"`
	RadiusKm float64            `json:"radius_km,omitempty"`
	Filters  []filter.Condition `json:"filters,omitempty"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset,omitempty"`
	Cursor   string             `json:"cursor,omitempty"`
}

// Shape classifies a query by which retrieval signals it carries.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeTextOnly
	ShapeGeoOnly
	ShapeAttributeOnly
	ShapeCombined
)

func (s Shape) String() string {
	switch s {
	case ShapeTextOnly:
		return "text_only"
	case ShapeGeoOnly:
		return "geo_only"
	case ShapeAttributeOnly:
		return "attribute_only"
	case ShapeCombined:
		return "combined"
	default:
		return "empty"
	}
}

// HasText reports whether the query carries a semantic signal.
func (q Query) HasText() bool { return strings.TrimSpace(q.Text) != "" }

// HasGeo reports whether the query carries a geo signal.
func (q Query) HasGeo() bool { return q.Center != nil }

// HasFilters reports whether the query carries attribute predicates.
func (q Query) HasFilters() bool { return len(q.Filters) > 0 }

// Shape returns the per-request classification driving the plan.
func (q Query) Shape() Shape {
	n := 0
	if q.HasText() {
		n++
	}
	if q.HasGeo() {
		n++
	}
	if q.HasFilters() {
		n++
	}
	switch {
	case n == 0:
		return ShapeEmpty
	case n > 1:
		return ShapeCombined
	case q.HasText():
		return ShapeTextOnly
	case q.HasGeo():
		return ShapeGeoOnly
	default:
		return ShapeAttributeOnly
	}
}

// Retrieval signal names reported back to callers when a signal was
// excluded from a degraded response.
const (
	SignalSemantic   = "semantic"
	SignalGeo        = "geo"
	SignalAttributes = "attributes"
)

// Hit is one ranked result. Similarity is set when the query carried text;
// DistanceKm when it carried a geo center.
type Hit struct {
	Listing    domain.Listing `json:"listing"`
	Similarity *float32       `json:"similarity,omitempty"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
}

// Result is one page of ranked hits. Degraded lists the signals excluded
// because their sub-query timed out or failed, so callers can tell "no
// results" from "partial results".
type Result struct {
	Hits       []Hit    `json:"hits"`
	NextCursor string   `json:"next_cursor,omitempty"`
	Degraded   []string `json:"degraded_signals,omitempty"`
}
