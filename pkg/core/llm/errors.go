package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/slior/dialectic/pkg/core/debateerr"
)

// ProviderError wraps a transport/auth/schema failure from a Provider with
// enough context to decide retryability without inspecting message text
// downstream.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Code       string
	RequestID  string
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("%s provider error (model=%s, status=%d): %s", e.Provider, e.Model, e.StatusCode, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AsDebateErr exposes a *ProviderError as the generic taxonomy used by the
// rest of the core.
func (e *ProviderError) AsDebateErr(op string) *debateerr.Error {
	return debateerr.New(debateerr.ProviderError, op, e)
}

// NewProviderError builds a ProviderError from a generic transport error,
// classifying retryability from the error text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Model:     model,
		Cause:     cause,
		Retryable: isRetryableMessage(cause.Error()),
	}
}

func isRetryableMessage(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	retryableSubstrings := []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// IsProviderError reports whether err is (or wraps) a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// GetProviderError extracts the *ProviderError from err, if any.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
