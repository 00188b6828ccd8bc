package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
	"github.com/homeseek/homeseek/pkg/metrics"
)

// Options configures the planner. Everything here is explicit
// construction-time configuration; the planner reads no ambient state.
type Options struct {
	// Overfetch multiplies the page depth when sizing the ANN candidate
	// pool, leaving room for post-filtering.
	Overfetch int
	// MinCandidates is the floor for the ANN candidate pool.
	MinCandidates int
	// MaxScanLimit is the hard ceiling on page size; it protects the
	// listing store from unbounded scans.
	MaxScanLimit int
	// DefaultLimit applies when the query carries no limit.
	DefaultLimit int
	// SignalTimeout bounds each per-signal sub-query. Zero disables the
	// per-signal deadline.
	SignalTimeout time.Duration
	// VectorDim, when positive, is the fixed embedding dimension for this
	// deployment; any mismatch is a data-integrity error.
	VectorDim int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Overfetch:     5,
		MinCandidates: 50,
		MaxScanLimit:  1000,
		DefaultLimit:  10,
		SignalTimeout: 5 * time.Second,
	}
}

// Deps holds the external collaborators of the planner.
type Deps struct {
	Embedder Embedder
	Index    VectorIndex
	Store    ListingStore
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Planner classifies each query by shape, fetches candidates from the
// signals it carries (concurrently for combined shapes), and hands the
// merged candidate set to the fuser for ranking and pagination.
type Planner struct {
	deps Deps
	opts Options

	searches *metrics.Counter
	degraded *metrics.Counter
	latency  *metrics.Histogram
}

// NewPlanner creates a Planner.
func NewPlanner(deps Deps, opts Options) *Planner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOptions().Overfetch
	}
	if opts.MinCandidates <= 0 {
		opts.MinCandidates = DefaultOptions().MinCandidates
	}
	if opts.MaxScanLimit <= 0 {
		opts.MaxScanLimit = DefaultOptions().MaxScanLimit
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions().DefaultLimit
	}

	p := &Planner{deps: deps, opts: opts}
	if deps.Metrics != nil {
		p.searches = deps.Metrics.Counter("search_requests_total", "Search requests served")
		p.degraded = deps.Metrics.Counter("search_degraded_total", "Search responses with an excluded signal")
		p.latency = deps.Metrics.Histogram("search_duration_seconds", "Search latency", metrics.DefaultBuckets)
	}
	return p
}

// Search runs the full hybrid retrieval plan for one query.
func (p *Planner) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	if p.searches != nil {
		p.searches.Inc()
		defer p.latency.Since(start)
	}

	shape := q.Shape()
	if shape == ShapeEmpty {
		return nil, fmt.Errorf("search: no text, geo, or attribute predicate: %w", domain.ErrEmptyQuery)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = p.opts.DefaultLimit
	}
	if limit > p.opts.MaxScanLimit {
		return nil, fmt.Errorf("search: limit %d exceeds ceiling %d: %w",
			limit, p.opts.MaxScanLimit, domain.ErrQueryTooBroad)
	}

	var cur *pageCursor
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		cur = &c
	}

	var box *geo.Box
	if q.HasGeo() {
		b, err := geo.BoundingBox(*q.Center, q.RadiusKm)
		if err != nil {
			return nil, err
		}
		box = &b
	}

	var (
		simScores     map[int64]float32
		simOrdered    []Scored
		textDegraded  bool
		stored        []domain.Listing
		storeDegraded bool
	)

	storeRequested := q.HasGeo() || q.HasFilters()

	// The ANN pool must cover everything the client has consumed so far,
	// whether that position came from an offset or a cursor.
	depth := limit + q.Offset
	if cur != nil {
		depth = limit + cur.Depth
	}

	g, gctx := errgroup.WithContext(ctx)

	if q.HasText() {
		g.Go(func() error {
			hits, err := p.semanticCandidates(gctx, q, box, depth)
			if err != nil {
				// Dimension mismatches are data-integrity failures, never
				// something to degrade around.
				if errors.Is(err, domain.ErrDimensionMismatch) {
					return err
				}
				if shape == ShapeTextOnly {
					return signalFatal(err)
				}
				p.deps.Logger.Warn("search: semantic signal excluded", "err", err)
				textDegraded = true
				return nil
			}
			simOrdered = hits
			simScores = make(map[int64]float32, len(hits))
			for _, h := range hits {
				simScores[h.ID] = h.Similarity
			}
			return nil
		})
	}

	if storeRequested {
		g.Go(func() error {
			ls, err := p.storeCandidates(gctx, box, q.Filters)
			if err != nil {
				// The store can only be excluded when the semantic signal can
				// still carry the query. When it serves every signal the query
				// has (geo-only, attribute-only, or geo+attribute combined),
				// its failure is the whole request.
				if !q.HasText() {
					return signalFatal(err)
				}
				p.deps.Logger.Warn("search: store signal excluded", "err", err)
				storeDegraded = true
				return nil
			}
			stored = ls
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if (q.HasText() && textDegraded) && (storeRequested && storeDegraded) {
		return nil, fmt.Errorf("search: all signals unavailable: %w", domain.ErrRetrievalTimeout)
	}

	var cands []Candidate
	var err error
	if storeRequested && !storeDegraded {
		cands = p.intersect(q, stored, simScores, textDegraded)
	} else {
		// Text-only shape, or a combined query whose store signal was
		// excluded: hydrate the ANN candidates and re-check every predicate
		// in-process so degraded responses never leak non-matching rows.
		cands, err = p.hydrate(ctx, q, simOrdered)
		if err != nil {
			return nil, err
		}
	}

	radius := 0.0
	if q.HasGeo() {
		radius = q.RadiusKm
	}
	fused := Fuse(cands, radius)

	var page []Candidate
	if cur != nil {
		page = pageAfterCursor(fused, *cur, limit)
	} else {
		page = pageByOffset(fused, q.Offset, limit)
	}

	res := &Result{Hits: make([]Hit, len(page))}
	for i, c := range page {
		res.Hits[i] = Hit{Listing: c.Listing, Similarity: c.Similarity, DistanceKm: c.DistanceKm}
	}
	if len(page) == limit && limit > 0 {
		next := cursorFrom(page[len(page)-1])
		next.Depth = q.Offset + len(page)
		if cur != nil {
			next.Depth = cur.Depth + len(page)
		}
		res.NextCursor = encodeCursor(next)
	}
	if textDegraded {
		res.Degraded = append(res.Degraded, SignalSemantic)
	}
	if storeDegraded {
		if q.HasGeo() {
			res.Degraded = append(res.Degraded, SignalGeo)
		}
		if q.HasFilters() {
			res.Degraded = append(res.Degraded, SignalAttributes)
		}
	}
	if len(res.Degraded) > 0 && p.degraded != nil {
		p.degraded.Inc()
	}

	p.deps.Logger.Info("search done",
		"shape", shape.String(),
		"candidates", len(fused),
		"returned", len(res.Hits),
		"degraded", res.Degraded,
		"duration", time.Since(start),
	)
	return res, nil
}

// semanticCandidates embeds the query text and runs the ANN search with
// the geo/attribute prefilter pushed down.
func (p *Planner) semanticCandidates(ctx context.Context, q Query, box *geo.Box, depth int) ([]Scored, error) {
	sctx, cancel := p.signalContext(ctx)
	defer cancel()

	vec, err := p.deps.Embedder.Embed(sctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if p.opts.VectorDim > 0 && len(vec) != p.opts.VectorDim {
		return nil, fmt.Errorf("search: query vector has %d dims, want %d: %w",
			len(vec), p.opts.VectorDim, domain.ErrDimensionMismatch)
	}

	topK := depth * p.opts.Overfetch
	if topK < p.opts.MinCandidates {
		topK = p.opts.MinCandidates
	}

	var pre *Prefilter
	if box != nil || len(q.Filters) > 0 {
		pre = &Prefilter{Box: box, Conditions: q.Filters}
	}

	hits, err := p.deps.Index.Search(sctx, vec, topK, pre)
	if err != nil {
		return nil, fmt.Errorf("search: ann search: %w", err)
	}
	return hits, nil
}

// storeCandidates queries the listing store by bounding box and attribute
// conditions.
func (p *Planner) storeCandidates(ctx context.Context, box *geo.Box, conds []filter.Condition) ([]domain.Listing, error) {
	sctx, cancel := p.signalContext(ctx)
	defer cancel()

	ls, err := p.deps.Store.Query(sctx, box, conds)
	if err != nil {
		return nil, fmt.Errorf("search: store query: %w", err)
	}
	return ls, nil
}

// intersect builds candidates from store results, applying the exact geo
// check and (when the semantic signal is live) the ANN intersection.
func (p *Planner) intersect(q Query, stored []domain.Listing, simScores map[int64]float32, textDegraded bool) []Candidate {
	useSim := q.HasText() && !textDegraded

	cands := make([]Candidate, 0, len(stored))
	for _, l := range stored {
		c := Candidate{Listing: l}

		if q.HasGeo() {
			if !l.HasCoordinates() {
				continue
			}
			ok, d, err := geo.Within(*q.Center, geo.Point{Lon: *l.Lon, Lat: *l.Lat}, q.RadiusKm)
			if err != nil || !ok {
				continue
			}
			c.DistanceKm = &d
		}

		if useSim {
			s, ok := simScores[l.ID]
			if !ok {
				continue
			}
			c.Similarity = &s
		}

		cands = append(cands, c)
	}
	return cands
}

// hydrate fetches listings for ANN hits and re-applies every predicate
// in-process.
func (p *Planner) hydrate(ctx context.Context, q Query, hits []Scored) ([]Candidate, error) {
	cands := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		l, err := p.deps.Store.Get(ctx, h.ID)
		if errors.Is(err, domain.ErrNotFound) {
			// The index can briefly run ahead of the store under concurrent
			// writes; a missing hit is skipped, not an error.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("search: hydrate listing %d: %w", h.ID, err)
		}
		if !filter.Matches(l, q.Filters) {
			continue
		}

		c := Candidate{Listing: l}
		sim := h.Similarity
		c.Similarity = &sim

		if q.HasGeo() {
			if !l.HasCoordinates() {
				continue
			}
			ok, d, err := geo.Within(*q.Center, geo.Point{Lon: *l.Lon, Lat: *l.Lat}, q.RadiusKm)
			if err != nil || !ok {
				continue
			}
			c.DistanceKm = &d
		}

		cands = append(cands, c)
	}
	return cands, nil
}

func (p *Planner) signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.SignalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.SignalTimeout)
}

// signalFatal maps a sub-query deadline onto the typed timeout error for
// shapes where the signal is the whole request.
func signalFatal(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("search: %w", domain.ErrRetrievalTimeout)
	}
	return err
}
