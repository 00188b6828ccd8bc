// Package search implements the hybrid retrieval and ranking engine: a
// per-request query planner that combines semantic similarity, geospatial
// radius containment, and structured attribute filters into one
// deterministic, paginated result set.
package search

import (
	"context"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
)

// Scored is one vector-index hit.
type Scored struct {
	ID         int64
	Similarity float32 // cosine similarity, higher is better
}

// Prefilter narrows an ANN search before scoring. The bounding box is an
// over-approximation; exact geo containment is re-checked downstream.
type Prefilter struct {
	Box        *geo.Box
	Conditions []filter.Condition
}

// Embedder maps text to a fixed-dimension vector. Implementations report
// outages as domain.ErrEmbeddingUnavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the ANN search service. Implementations report outages as
// domain.ErrIndexUnavailable.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int, pre *Prefilter) ([]Scored, error)
	Upsert(ctx context.Context, listings []domain.Listing) error
	Delete(ctx context.Context, id int64) error
}

// ListingStore is the metadata store. It is shared and externally
// synchronized; the engine never assumes exclusive access.
type ListingStore interface {
	Get(ctx context.Context, id int64) (domain.Listing, error)
	Query(ctx context.Context, box *geo.Box, conds []filter.Condition) ([]domain.Listing, error)
	Upsert(ctx context.Context, l domain.Listing) error
	Delete(ctx context.Context, id int64) error
	Scan(ctx context.Context, fn func(domain.Listing) error) error
}
