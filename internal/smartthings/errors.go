package smartthings

import (
	"errors"
	"fmt"
)

// Sentinel errors for the SmartThings API client.
//
// These allow callers to use errors.Is() to classify failures without
// inspecting HTTP status codes themselves:
//
//	status, err := client.DeviceStatus(ctx, id)
//	if errors.Is(err, smartthings.ErrUnauthorized) {
//	    // token invalid or expired, do not retry
//	}
var (
	// ErrUnauthorized indicates the access token was rejected (HTTP 401).
	// Never retried; the token must be refreshed or replaced.
	ErrUnauthorized = errors.New("smartthings: unauthorized")

	// ErrForbidden indicates the token lacks the required scope (HTTP 403).
	ErrForbidden = errors.New("smartthings: forbidden")

	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound = errors.New("smartthings: not found")

	// ErrRateLimited indicates the cloud rejected the request for rate
	// limiting (HTTP 429). Retried with backoff up to the configured limit.
	ErrRateLimited = errors.New("smartthings: rate limited")

	// ErrServer indicates a 5xx response from the cloud. Retried.
	ErrServer = errors.New("smartthings: server error")

	// ErrNetwork indicates a transport-level failure (DNS, connection
	// refused, TLS). Retried.
	ErrNetwork = errors.New("smartthings: network error")

	// ErrTimeout indicates the request exceeded the configured timeout.
	// Retried.
	ErrTimeout = errors.New("smartthings: request timeout")

	// ErrRetriesExhausted indicates all retry attempts failed.
	ErrRetriesExhausted = errors.New("smartthings: retries exhausted")
)

// APIError carries the HTTP details of a failed API call alongside the
// taxonomy sentinel it maps to. Unwrap() returns the sentinel so both
// errors.Is(err, ErrRateLimited) and errors.As(err, &apiErr) work.
type APIError struct {
	StatusCode int
	Message    string
	Sentinel   error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("smartthings: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("smartthings: HTTP %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// classifyStatus maps an HTTP status code to the error taxonomy.
// Returns nil for success codes.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 401:
		return ErrUnauthorized
	case code == 403:
		return ErrForbidden
	case code == 404:
		return ErrNotFound
	case code == 429:
		return ErrRateLimited
	case code >= 500:
		return ErrServer
	default:
		return ErrServer
	}
}

// retryable reports whether an error is worth retrying. Authorization
// and not-found failures are permanent; everything transient is not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrServer),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}
