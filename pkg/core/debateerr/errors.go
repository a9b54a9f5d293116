// Package debateerr defines the error taxonomy shared across the debate
// core: a small set of kinds, not types, so callers can branch on Kind()
// without importing every producer package.
package debateerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy purposes. See the
// taxonomy table for which kinds are locally recovered versus escalated.
type Kind string

const (
	InvalidInput      Kind = "invalid_input"
	ConfigError       Kind = "config_error"
	StorageError      Kind = "storage_error"
	ProviderError     Kind = "provider_error"
	ToolError         Kind = "tool_error"
	TimeoutError      Kind = "timeout_error"
	Cancelled         Kind = "cancelled"
	ParseError        Kind = "parse_error"
	SummarizationError Kind = "summarization_error"
	NotFound          Kind = "not_found"
	NoActiveRound     Kind = "no_active_round"
)

// Error wraps an underlying cause with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op with the given kind, wrapping cause (which
// may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, or "" if err doesn't wrap one.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
