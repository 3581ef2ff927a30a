package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures across the extraction and download pipeline.
type ErrorType string

const (
	// ErrorTypeAuth means Instagram rejected the session cookies. Fatal:
	// every subsequent request would fail the same way.
	ErrorTypeAuth ErrorType = "auth"

	// ErrorTypeRateLimit means the platform signalled throttling (429).
	// Recovered with bounded backoff; fatal only past the bound.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeParsing means a response body could not be decoded.
	// Fail-soft at the page level during extraction.
	ErrorTypeParsing ErrorType = "parsing"

	// ErrorTypeNetwork covers connection resets, timeouts and other
	// transport failures.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeServer covers 5xx responses.
	ErrorTypeServer ErrorType = "server_error"

	// ErrorTypePermanent covers non-retryable download failures such as
	// 4xx responses and malformed URLs.
	ErrorTypePermanent ErrorType = "permanent"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error is a typed API error carried through the pipeline.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error.
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Code: code}
}

// TypeOf returns the error type of err, unwrapping as needed.
// Errors that are not *Error report ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return TypeOf(err) == ErrorTypeAuth }

// IsRateLimit reports whether err is a throttling response.
func IsRateLimit(err error) bool { return TypeOf(err) == ErrorTypeRateLimit }

// IsParsing reports whether err is a malformed-response failure.
func IsParsing(err error) bool { return TypeOf(err) == ErrorTypeParsing }

// IsRetryable checks if an error type should be retried.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	case ErrorTypeAuth, ErrorTypeParsing, ErrorTypePermanent:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatusCode maps an HTTP status code onto the taxonomy.
func FromStatusCode(code int, url string) *Error {
	switch {
	case code == 401 || code == 403:
		return New(ErrorTypeAuth, code, "authentication rejected for %s", url)
	case code == 429:
		return New(ErrorTypeRateLimit, code, "rate limited on %s", url)
	case code >= 500:
		return New(ErrorTypeServer, code, "server error on %s", url)
	case code >= 400:
		return New(ErrorTypePermanent, code, "request failed for %s", url)
	default:
		return New(ErrorTypeUnknown, code, "unexpected status for %s", url)
	}
}
