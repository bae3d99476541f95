package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeCleanup     ErrorType = "cleanup"
	ErrorTypeFatalInit   ErrorType = "fatal_init"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a pipeline error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error without an HTTP status code.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// SkipReason classifies an expected, counted validation skip. Skips are
// never logged as errors and never abort a batch.
type SkipReason string

const (
	SkipTooSmall         SkipReason = "too_small"
	SkipOffDomain        SkipReason = "off_domain"
	SkipNotMedia         SkipReason = "not_media"
	SkipAlreadyProcessed SkipReason = "already_processed"
	SkipTypeDisabled     SkipReason = "type_disabled"
)

// SkipError marks an item as intentionally skipped by a validation rule.
type SkipError struct {
	Reason SkipReason
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("skipped (%s)", e.Reason)
	}
	return fmt.Sprintf("skipped (%s): %s", e.Reason, e.Detail)
}

// Skip creates a SkipError for the given reason.
func Skip(reason SkipReason, detail string) *SkipError {
	return &SkipError{Reason: reason, Detail: detail}
}

// AsSkip returns the SkipError wrapped in err, if any.
func AsSkip(err error) (*SkipError, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}

// ErrNoStrategyAvailable is returned when neither API, browser, nor
// fallback-fetcher extraction can serve a seed URL. Terminal for that
// seed only, never for the whole run.
var ErrNoStrategyAvailable = New(ErrorTypeFatalInit, "no suitable extraction strategy available")

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeFatalInit:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
