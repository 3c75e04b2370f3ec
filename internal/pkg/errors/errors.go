// Package errors provides the application error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors surfaced by the service and repository layers. Route
// handlers match on these with errors.Is and convert them to redirects.
var (
	// ErrDuplicateUser is returned when a username or federated identity
	// already exists in the credential store.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidCredentials is the single failure surfaced for local login.
	// Callers cannot distinguish an unknown username from a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAuthFailed is returned when a federated login attempt fails at any
	// stage: provider error, token exchange, or an unusable profile.
	ErrAuthFailed = errors.New("federated authentication failed")

	// ErrUserNotFound is returned when a mutation targets a missing record.
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginFailed is returned when a session could not be established for
	// an otherwise authenticated user.
	ErrLoginFailed = errors.New("failed to establish session")
)

// APIError represents a standardized API error response, used by the JSON
// operational endpoints (health, ready).
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions
var (
	// ErrUnauthorized is returned when authentication is required but missing or invalid.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrServiceUnavailable is returned when a dependent service is unavailable.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates an internal error with a custom message.
// This should only be used in development; in production, use ErrInternal.
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:       "internal_error",
		Message:    fmt.Sprintf("internal error: %s", message),
		StatusCode: http.StatusInternalServerError,
	}
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
