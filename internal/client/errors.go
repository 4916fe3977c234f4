package client

// ============================================================================
// Client Error Definitions
// Purpose: Submission and polling error taxonomy shared with the poller
// ============================================================================

import (
	"errors"
	"fmt"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/submission"
)

// Predefined errors
var (
	// ErrMissingHandle indicates a status request without an ingestion id (no network call made)
	ErrMissingHandle = errors.New("client: ingestion id is required")

	// ErrJobNotFound indicates GET /status/{id} answered 404
	ErrJobNotFound = errors.New("client: job not found")
)

// HTTPError represents a non-2xx answer other than a status 404
type HTTPError struct {
	StatusCode int    // HTTP status code
	Endpoint   string // request path
	Body       string // response body, truncated
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client: %s returned HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("client: %s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// NetworkError represents a transport or response parse failure
type NetworkError struct {
	Endpoint string // request path
	Cause    error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("client: %s failed: %v", e.Endpoint, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// ErrorKind is a stable label for an error, used for display and metrics
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindMissingPriority ErrorKind = "missing_priority"
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindMissingHandle   ErrorKind = "missing_handle"
	KindJobNotFound     ErrorKind = "job_not_found"
	KindHTTP            ErrorKind = "http_error"
	KindNetwork         ErrorKind = "network_error"
	KindUnknown         ErrorKind = "unknown"
)

// KindOf classifies err into one of the ErrorKind labels
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var httpErr *HTTPError
	var netErr *NetworkError

	switch {
	case errors.Is(err, submission.ErrMissingPriority):
		return KindMissingPriority
	case errors.Is(err, submission.ErrInvalidRequest), errors.Is(err, submission.ErrInvalidPriority):
		return KindInvalidRequest
	case errors.Is(err, ErrMissingHandle):
		return KindMissingHandle
	case errors.Is(err, ErrJobNotFound):
		return KindJobNotFound
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindUnknown
	}
}
