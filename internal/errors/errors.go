// Package errors defines the categorized error taxonomy shared by the
// crawl client, worker orchestrator, and HTTP API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfig represents missing or invalid configuration (fatal,
	// surfaces at crawl startup)
	CategoryConfig ErrorCategory = "config"
	// CategoryRateLimit represents the upstream API throttling us (retryable)
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryTransient represents 5xx/timeout upstream failures (retryable)
	CategoryTransient ErrorCategory = "transient_api"
	// CategoryAuth represents 401/403 upstream failures (fatal, no retry)
	CategoryAuth ErrorCategory = "auth"
	// CategoryNotFound represents 404 upstream failures (fatal, no retry)
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryStore represents persistent-store failures (propagated; the
	// job-level retry/backoff is the recovery mechanism)
	CategoryStore ErrorCategory = "store"
	// CategoryValidation represents invalid caller input
	CategoryValidation ErrorCategory = "validation"
)

// CategorizedError represents an error with a category and retry semantics
type CategorizedError struct {
	Category   ErrorCategory
	Code       string
	Message    string
	StatusCode int
	RetryAfter time.Duration // upstream hint, zero when absent
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a missing-credentials/configuration error
func NewConfigError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfig,
		StatusCode: http.StatusInternalServerError,
		Code:       "CONFIG_ERROR",
		Message:    message,
	}
}

// NewRateLimitError creates an upstream rate limit error with an optional
// Retry-After hint
func NewRateLimitError(retryAfter time.Duration) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMITED",
		Message:    "engagement API rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewTransientAPIError creates a retryable upstream error (5xx or timeout)
func NewTransientAPIError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "TRANSIENT_API_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewAuthError creates a fatal authentication/authorization error
func NewAuthError(statusCode int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuth,
		StatusCode: statusCode,
		Code:       "AUTH_ERROR",
		Message:    fmt.Sprintf("engagement API rejected credentials (status %d)", statusCode),
	}
}

// NewNotFoundError creates a fatal not-found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewStoreError creates a persistent-store error
func NewStoreError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORE_ERROR",
		Message:    fmt.Sprintf("store error during %s", operation),
		Cause:      cause,
	}
}

// NewValidationError creates an invalid-input error
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_INPUT",
		Message:    message,
	}
}

// Categorize returns the CategorizedError behind err, or wraps unknown
// errors as store errors (the conservative, retryable-at-job-level default)
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return NewStoreError("unknown operation", err)
}

// IsRetryable reports whether the crawl client may retry locally
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryRateLimit, CategoryTransient:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must surface immediately without retry
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryConfig, CategoryAuth, CategoryNotFound, CategoryValidation:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the upstream Retry-After hint, or zero
func RetryAfterHint(err error) time.Duration {
	if catErr := Categorize(err); catErr != nil {
		return catErr.RetryAfter
	}
	return 0
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
