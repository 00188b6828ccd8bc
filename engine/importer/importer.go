package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/search"
	"github.com/homeseek/homeseek/pkg/fn"
	"github.com/homeseek/homeseek/pkg/metrics"
)

// Deps holds the external collaborators of the importer.
type Deps struct {
	Embedder search.Embedder
	Index    search.VectorIndex
	Store    search.ListingStore
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Options configures the importer.
type Options struct {
	// Workers bounds concurrent row processing within a batch.
	Workers int
	// VectorDim, when positive, is the required embedding dimension.
	VectorDim int
}

// Importer processes listing batches: batch-level last-write-wins
// deduplication, per-row validation, embedding, and upsert into both the
// listing store and the vector index. Batches are not atomic; each row
// reaches its own terminal outcome independently.
type Importer struct {
	deps   Deps
	opts   Options
	pool   *ants.Pool
	commit fn.Stage[domain.Listing, Outcome]
}

// New creates an Importer with a bounded worker pool. Close releases it.
func New(deps Deps, opts Options) (*Importer, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("importer: worker pool: %w", err)
	}

	im := &Importer{deps: deps, opts: opts, pool: pool}
	im.commit = fn.Then(
		fn.TracedStage("import.embed", im.embedStage()),
		fn.TracedStage("import.write", im.writeStage()),
	)
	return im, nil
}

// Close releases the worker pool.
func (im *Importer) Close() { im.pool.Release() }

// Import runs one batch and returns a per-row report in input order.
// A batch-level error is returned only when the batch itself could not be
// processed, such as a context cancellation cutting it short; individual
// row failures are reported, not returned. Aborted batches are safe to
// redeliver because row writes are idempotent upserts.
func (im *Importer) Import(ctx context.Context, rows []domain.Listing) (*Report, error) {
	reports := make([]RowReport, len(rows))

	// Last occurrence of each id wins; earlier duplicates never reach
	// validation or the stores.
	last := make(map[int64]int, len(rows))
	for i, r := range rows {
		if r.ID > 0 {
			last[r.ID] = i
		}
	}

	var wg sync.WaitGroup
	for i := range rows {
		l := rows[i]
		reports[i] = RowReport{Index: i, ID: l.ID, Outcome: OutcomeRejected}

		if l.ID > 0 && last[l.ID] != i {
			reports[i].Outcome = OutcomeSuperseded
			continue
		}
		if err := domain.ValidateListing(l); err != nil {
			reports[i].Reason = rejectReason(err)
			reports[i].Error = err.Error()
			continue
		}
		if err := ctx.Err(); err != nil {
			// A cut-short batch is a structural failure, not a string of row
			// rejections: surface it so the caller can redeliver.
			wg.Wait()
			return nil, fmt.Errorf("importer: batch aborted after %d rows: %w", i, err)
		}

		i := i
		wg.Add(1)
		if err := im.pool.Submit(func() {
			defer wg.Done()
			reports[i] = im.processRow(ctx, reports[i], l)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("importer: submit row %d: %w", i, err)
		}
	}
	wg.Wait()

	rep := summarize(reports)
	im.countOutcomes(reports)
	im.deps.Logger.Info("import batch done",
		"rows", len(rows),
		"inserted", rep.Inserted,
		"updated", rep.Updated,
		"superseded", rep.Superseded,
		"rejected", rep.Rejected,
	)
	return rep, nil
}

func (im *Importer) processRow(ctx context.Context, rep RowReport, l domain.Listing) RowReport {
	out, err := im.commit(ctx, l).Unwrap()
	if err != nil {
		rep.Outcome = OutcomeRejected
		rep.Reason = ReasonStoreFailed
		if errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, domain.ErrDimensionMismatch) {
			rep.Reason = ReasonEmbeddingFailed
		}
		rep.Error = err.Error()
		im.deps.Logger.Warn("import: row failed", "id", l.ID, "err", err)
		return rep
	}
	rep.Outcome = out
	return rep
}

// embedStage vectorizes the listing's semantic document.
func (im *Importer) embedStage() fn.Stage[domain.Listing, domain.Listing] {
	return func(ctx context.Context, l domain.Listing) fn.Result[domain.Listing] {
		vec, err := im.deps.Embedder.Embed(ctx, l.SemanticDocument())
		if err != nil {
			return fn.Err[domain.Listing](fmt.Errorf("embed listing %d: %w", l.ID, err))
		}
		if im.opts.VectorDim > 0 && len(vec) != im.opts.VectorDim {
			return fn.Err[domain.Listing](fmt.Errorf("listing %d vector has %d dims, want %d: %w",
				l.ID, len(vec), im.opts.VectorDim, domain.ErrDimensionMismatch))
		}
		l.Vector = vec
		return fn.Ok(l)
	}
}

// writeStage upserts the listing into the store and the index, deciding
// inserted-vs-updated from the store's prior state.
func (im *Importer) writeStage() fn.Stage[domain.Listing, Outcome] {
	return func(ctx context.Context, l domain.Listing) fn.Result[Outcome] {
		outcome := OutcomeInserted
		if _, err := im.deps.Store.Get(ctx, l.ID); err == nil {
			outcome = OutcomeUpdated
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fn.Err[Outcome](fmt.Errorf("lookup listing %d: %w", l.ID, err))
		}

		if err := im.deps.Store.Upsert(ctx, l); err != nil {
			return fn.Err[Outcome](fmt.Errorf("store listing %d: %w", l.ID, err))
		}
		if err := im.deps.Index.Upsert(ctx, []domain.Listing{l}); err != nil {
			return fn.Err[Outcome](fmt.Errorf("index listing %d: %w", l.ID, err))
		}
		return fn.Ok(outcome)
	}
}

func (im *Importer) countOutcomes(rows []RowReport) {
	if im.deps.Metrics == nil {
		return
	}
	for _, r := range rows {
		im.deps.Metrics.Counter(
			metrics.WithLabels("import_rows_total", "outcome", string(r.Outcome)),
			"Import rows by terminal outcome",
		).Inc()
	}
}

func rejectReason(err error) Reason {
	switch {
	case errors.Is(err, domain.ErrMissingID):
		return ReasonMissingID
	case errors.Is(err, domain.ErrInvalidCoordinates):
		return ReasonInvalidCoordinates
	case errors.Is(err, domain.ErrNegativePrice):
		return ReasonNegativePrice
	case errors.Is(err, domain.ErrNegativeArea):
		return ReasonNegativeArea
	default:
		return ReasonStoreFailed
	}
}
