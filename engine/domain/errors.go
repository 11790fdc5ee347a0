package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the engine-wide error taxonomy. Callers branch with
// errors.Is; nothing in the engine catches these and re-renders them as text.
var (
	// Configuration errors: fatal to the call, never retried.
	ErrInvalidChunking = errors.New("invalid chunking configuration")
	ErrEmptyEntityList = errors.New("entity list is empty")
	ErrEmptyQuery      = errors.New("query text is empty")

	// ErrDimensionMismatch: an embedding vector disagrees with a collection's
	// configured dimension. Never truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Upstream failures: embedding service, vector store, or LLM.
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrDocumentNotFound: a query named a document_id with no collection.
	ErrDocumentNotFound = errors.New("document not processed")

	// ErrExtractionFailed: PDF unreadable even after the OCR fallback.
	ErrExtractionFailed = errors.New("document extraction failed")

	ErrQueryTooShort     = errors.New("query too short")
	ErrQueryInjection    = errors.New("query contains suspicious content")
	ErrInvalidDocumentID = errors.New("invalid document id")
)

// ConfigError wraps a configuration sentinel with the offending field/value.
type ConfigError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return e.Wrapped }

// NewConfigError creates a ConfigError.
func NewConfigError(field, value string, wrapped error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Wrapped: wrapped}
}

// ClassifyUpstream maps transport-level failures from an external call onto
// the upstream sentinels, preserving the original error text. Non-transport
// errors are wrapped unchanged.
func ClassifyUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %s", op, ErrUpstreamTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w: %s", op, ErrUpstreamTimeout, err)
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return fmt.Errorf("%s: %w: %s", op, ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
