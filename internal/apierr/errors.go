package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed filter, window or payload
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a ValidationError from a format string
func Validation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports a missing session (401) or a denied capability (403)
type AuthorizationError struct {
	Code    int
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// Unauthorized is returned when the caller has no valid session
func Unauthorized(message string) *AuthorizationError {
	return &AuthorizationError{Code: http.StatusUnauthorized, Message: message}
}

// Forbidden is returned when the caller is known but lacks the capability or scope
func Forbidden(message string) *AuthorizationError {
	return &AuthorizationError{Code: http.StatusForbidden, Message: message}
}

// UpstreamError reports a failure of the search index or the document store
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError for the named operation
func Upstream(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// SecurityViolation reports a tampered replication request
type SecurityViolation struct {
	Filter string
	Reason string
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("unauthorized replication attempt (filter %q): %s", e.Filter, e.Reason)
}

// Status maps an error from the taxonomy to the HTTP status surfaced to callers
func Status(err error) int {
	var validation *ValidationError
	var authz *AuthorizationError
	var security *SecurityViolation

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &authz):
		return authz.Code
	case errors.As(err, &security):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
