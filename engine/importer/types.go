// Package importer implements the bulk import pipeline: batch-level
// deduplication, per-row validation, embedding, and upsert into the vector
// index and listing store, with a per-row outcome report.
package importer

// Outcome is the terminal state of one input row.
type Outcome string

const (
	OutcomeInserted   Outcome = "inserted"
	OutcomeUpdated    Outcome = "updated"
	OutcomeSuperseded Outcome = "superseded_in_batch"
	OutcomeRejected   Outcome = "rejected"
)

// Reason explains a rejection. Empty for non-rejected rows.
type Reason string

const (
	ReasonMissingID          Reason = "missing_id"
	ReasonInvalidCoordinates Reason = "invalid_coordinates"
	ReasonNegativePrice      Reason = "negative_price"
	ReasonNegativeArea       Reason = "negative_area"
	ReasonEmbeddingFailed    Reason = "embedding_failed"
	ReasonStoreFailed        Reason = "store_failed"
)

// RowReport records what happened to one input row. Index refers to the
// row's position in the submitted batch.
type RowReport struct {
	Index   int     `json:"index"`
	ID      int64   `json:"id,omitempty"`
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report summarizes one batch. Rows is in input order and has one entry per
// submitted row; the batch is not atomic, so any mix of outcomes is normal.
type Report struct {
	Rows       []RowReport `json:"rows"`
	Inserted   int         `json:"inserted"`
	Updated    int         `json:"updated"`
	Superseded int         `json:"superseded_in_batch"`
	Rejected   int         `json:"rejected"`
}

func summarize(rows []RowReport) *Report {
	rep := &Report{Rows: rows}
	for _, r := range rows {
		switch r.Outcome {
		case OutcomeInserted:
			rep.Inserted++
		case OutcomeUpdated:
			rep.Updated++
		case OutcomeSuperseded:
			rep.Superseded++
		case OutcomeRejected:
			rep.Rejected++
		}
	}
	return rep
}
