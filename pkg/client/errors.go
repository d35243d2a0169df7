package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingToken is returned by New when no credential is configured.
	ErrMissingToken = errors.New("github token is required")

	// ErrRetryExhausted is returned when all network retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends while waiting or retrying.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassRateLimit represents 403/429 rate limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassAPI represents any other non-200 response.
	ErrorClassAPI ErrorClass = "api"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a non-200, non-rate-limit response from GitHub.
type APIError struct {
	StatusCode int
	Body       string
	URL        string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("github api error (status %d) for %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("github api error (status %d): %s", e.StatusCode, e.Body)
}

// Class returns the error class of the status code.
func (e *APIError) Class() ErrorClass {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus maps a non-200 status to its error class.
func ClassifyStatus(status int) ErrorClass {
	switch status {
	case 403, 429:
		return ErrorClassRateLimit
	default:
		return ErrorClassAPI
	}
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
