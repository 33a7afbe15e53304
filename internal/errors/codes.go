package errors

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryStorage    Category = "storage"
	CategoryProvider   Category = "provider"
	CategoryBudget     Category = "budget"
	CategoryInternal   Category = "internal"
)

// Severity indicates how an error should be handled by callers.
type Severity string

const (
	// SeverityFatal errors require operator intervention.
	SeverityFatal Severity = "fatal"
	// SeverityError errors fail the current operation but the process continues.
	SeverityError Severity = "error"
	// SeverityWarning errors are recoverable and may be retried or degraded around.
	SeverityWarning Severity = "warning"
)

// Stable error codes carried on every SynthError. These are part of the API
// surface: HTTP handlers serialize them verbatim into error envelopes.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeInternal            = "INTERNAL_ERROR"
)

// categoryFromCode derives the owning subsystem from a code.
func categoryFromCode(code string) Category {
	switch code {
	case CodeInvalidInput, CodeNotFound, CodeConflict, CodePayloadTooLarge:
		return CategoryValidation
	case CodeRateLimited, CodeProviderUnavailable:
		return CategoryProvider
	case CodeQuotaExceeded:
		return CategoryBudget
	default:
		return CategoryInternal
	}
}

// severityFromCode derives handling severity from a code.
func severityFromCode(code string) Severity {
	switch code {
	case CodeRateLimited, CodeProviderUnavailable:
		return SeverityWarning
	case CodeInternal:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code are
// worth retrying with backoff.
func isRetryableCode(code string) bool {
	switch code {
	case CodeRateLimited, CodeProviderUnavailable:
		return true
	default:
		return false
	}
}

// httpStatusFromCode maps a code to the HTTP status the API layer returns.
func httpStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodePayloadTooLarge:
		return 413
	case CodeRateLimited:
		return 429
	case CodeQuotaExceeded:
		return 402
	case CodeProviderUnavailable:
		return 503
	default:
		return 500
	}
}
