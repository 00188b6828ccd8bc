package search

import (
	"sort"

	"github.com/homeseek/homeseek/engine/domain"
)

// Candidate is a listing with the per-signal scores it accumulated during
// planning: similarity in [0,1] (higher is better) and distance in km
// (lower is better). Either may be absent depending on query shape.
type Candidate struct {
	Listing    domain.Listing
	Similarity *float32
	DistanceKm *float64
}

// Fuse merges scored candidates into one deterministic ordering. When
// radiusKm is positive the radius acts as a hard filter: candidates with no
// computed distance or a distance beyond the radius are dropped before
// ranking, never merely down-ranked.
//
// Ranking: similarity descending, then distance ascending, then id
// ascending. The id tie-break makes the ordering reproducible for
// identical inputs, which pagination depends on.
func Fuse(cands []Candidate, radiusKm float64) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if radiusKm > 0 {
			if c.DistanceKm == nil || *c.DistanceKm > radiusKm {
				continue
			}
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return rankLess(out[i], out[j])
	})
	return out
}

// rankLess is the single ordering used for ranking and cursor comparison.
func rankLess(a, b Candidate) bool {
	if a.Similarity != nil && b.Similarity != nil && *a.Similarity != *b.Similarity {
		return *a.Similarity > *b.Similarity
	}
	if a.DistanceKm != nil && b.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
		return *a.DistanceKm < *b.DistanceKm
	}
	return a.Listing.ID < b.Listing.ID
}

// pageByOffset slices one page out of a fused ordering. Returning fewer
// candidates than limit is success, never an error. Offset pagination does
// not guarantee stability under concurrent inserts; cursor pagination does.
func pageByOffset(fused []Candidate, offset, limit int) []Candidate {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(fused) {
		return nil
	}
	end := offset + limit
	if end > len(fused) {
		end = len(fused)
	}
	return fused[offset:end]
}

// pageAfterCursor returns the first limit candidates ranking strictly after
// the cursor position. Listings inserted between page fetches that rank
// before the cursor are skipped, so previously returned pages keep their
// ordering.
func pageAfterCursor(fused []Candidate, cur pageCursor, limit int) []Candidate {
	anchor := cur.asCandidate()
	out := make([]Candidate, 0, limit)
	for _, c := range fused {
		if !rankLess(anchor, c) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
