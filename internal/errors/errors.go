// Package errors defines the structured error type shared by every
// subsystem. Errors carry a stable code, a category, and enough detail
// for both log lines and API error envelopes to be built without
// string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// SynthError is the error type returned across package boundaries.
type SynthError struct {
	// Code is a stable machine-readable identifier (see codes.go).
	Code string
	// Message is a human-readable description.
	Message string
	// Category groups the error by owning subsystem.
	Category Category
	// Severity indicates how callers should react.
	Severity Severity
	// Details holds structured context (document id, provider name, etc).
	Details map[string]string
	// Cause is the wrapped underlying error, if any.
	Cause error
	// Retryable reports whether retrying with backoff may succeed.
	Retryable bool
	// Suggestion optionally tells the operator how to fix the problem.
	Suggestion string
}

// Error implements the error interface.
func (e *SynthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *SynthError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so callers can compare against sentinel
// instances without caring about message or details.
func (e *SynthError) Is(target error) bool {
	var se *SynthError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// New creates a SynthError with category, severity, and retryability
// derived from the code.
func New(code, message string, cause error) *SynthError {
	return &SynthError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Details:   make(map[string]string),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap annotates an existing error with a code and message. If err is
// already a SynthError it is kept as the cause so the original code
// remains reachable via errors.As.
func Wrap(err error, code, message string) *SynthError {
	if err == nil {
		return nil
	}
	return New(code, message, err)
}

// WithDetail attaches a key/value pair and returns the error for chaining.
func (e *SynthError) WithDetail(key, value string) *SynthError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an operator-facing remediation hint.
func (e *SynthError) WithSuggestion(s string) *SynthError {
	e.Suggestion = s
	return e
}

// Convenience constructors, one per code.

func InvalidInput(message string) *SynthError {
	return New(CodeInvalidInput, message, nil)
}

func InvalidInputf(format string, args ...any) *SynthError {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...), nil)
}

func NotFound(kind, id string) *SynthError {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

func Conflict(message string) *SynthError {
	return New(CodeConflict, message, nil)
}

func PayloadTooLarge(message string) *SynthError {
	return New(CodePayloadTooLarge, message, nil)
}

func RateLimited(provider string, cause error) *SynthError {
	return New(CodeRateLimited, fmt.Sprintf("provider %s rate limited", provider), cause).
		WithDetail("provider", provider)
}

func ProviderUnavailable(provider string, cause error) *SynthError {
	return New(CodeProviderUnavailable, fmt.Sprintf("provider %s unavailable", provider), cause).
		WithDetail("provider", provider)
}

func QuotaExceeded(message string) *SynthError {
	return New(CodeQuotaExceeded, message, nil)
}

func Internal(message string, cause error) *SynthError {
	return New(CodeInternal, message, cause)
}

// GetCode extracts the code from any error, returning CodeInternal for
// errors that are not SynthErrors.
func GetCode(err error) string {
	var se *SynthError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// GetCategory extracts the category from any error.
func GetCategory(err error) Category {
	var se *SynthError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryInternal
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	var se *SynthError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	var se *SynthError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// HTTPStatus maps any error to the HTTP status the API layer should
// return. Non-SynthErrors map to 500.
func HTTPStatus(err error) int {
	return httpStatusFromCode(GetCode(err))
}
