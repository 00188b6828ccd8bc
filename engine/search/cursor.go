package search

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/homeseek/homeseek/engine/domain"
)

// pageCursor encodes the last-seen (score, id) pair of a page plus the
// number of results the client has consumed so far, which sizes the ANN
// pool on the next page. It is opaque to callers: base64url over a small
// JSON object.
type pageCursor struct {
	Sim   *float32 `json:"s,omitempty"`
	Dist  *float64 `json:"d,omitempty"`
	ID    int64    `json:"id"`
	Depth int      `json:"n,omitempty"`
}

// asCandidate projects the cursor back into ranking space so the one
// rankLess ordering can compare real candidates against it.
func (c pageCursor) asCandidate() Candidate {
	return Candidate{
		Listing:    domain.Listing{ID: c.ID},
		Similarity: c.Sim,
		DistanceKm: c.Dist,
	}
}

func cursorFrom(c Candidate) pageCursor {
	return pageCursor{Sim: c.Similarity, Dist: c.DistanceKm, ID: c.Listing.ID}
}

func encodeCursor(c pageCursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (pageCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, fmt.Errorf("search: decode cursor: %w", domain.ErrInvalidCursor)
	}
	var c pageCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return pageCursor{}, fmt.Errorf("search: parse cursor: %w", domain.ErrInvalidCursor)
	}
	if c.ID <= 0 {
		return pageCursor{}, fmt.Errorf("search: cursor without id: %w", domain.ErrInvalidCursor)
	}
	if c.Depth < 0 {
		return pageCursor{}, fmt.Errorf("search: cursor with negative depth: %w", domain.ErrInvalidCursor)
	}
	return c, nil
}
