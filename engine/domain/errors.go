package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine error taxonomy. Signal-level failures
// (a timeout on one retrieval signal, a rejected import row) are recovered
// locally; the rest propagate to the caller as typed errors.
var (
	ErrInvalidGeoInput      = errors.New("invalid geo input")
	ErrQueryTooBroad        = errors.New("query too broad")
	ErrEmptyQuery           = errors.New("empty query")
	ErrRetrievalTimeout     = errors.New("retrieval timed out")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrIndexUnavailable     = errors.New("vector index unavailable")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrNotFound             = errors.New("listing not found")
	ErrInvalidCursor        = errors.New("invalid pagination cursor")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
