package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an application error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInterrupted    ErrorCode = "INTERRUPTED"     // 499
	ErrConfig         ErrorCode = "CONFIG_ERROR"    // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"  // 502
)

// StatusClientClosed is the non-standard status used for interrupted requests.
const StatusClientClosed = 499

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid user input.
// Returned before any network call is made.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidField creates a 400 error naming the offending field.
func NewInvalidField(field, msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("`%s` %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(what string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", what),
		Details: map[string]any{"identifier": what},
	}
}

// NewConfig creates a configuration error (missing credentials, empty cache).
// Configuration errors are fatal to the current operation and never retried.
func NewConfig(msg string) *AppError {
	return &AppError{
		Code:    ErrConfig,
		Status:  500,
		Message: msg,
	}
}

// NewUpstream creates a 502 error for a non-2xx response from an external API.
// The upstream status and body are preserved in Details.
func NewUpstream(service, method, path string, status int, body string) *AppError {
	return &AppError{
		Code:    ErrUpstream,
		Status:  502,
		Message: fmt.Sprintf("%s API %s %s → %d: %s", service, method, path, status, body),
		Details: map[string]any{
			"service": service,
			"status":  status,
			"body":    body,
		},
	}
}

// NewInterrupted creates the error returned when an in-flight call is cancelled.
// Callers surface it as an "interrupted" status, not as a failure.
func NewInterrupted() *AppError {
	return &AppError{
		Code:    ErrInterrupted,
		Status:  StatusClientClosed,
		Message: "interrupted",
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err (or anything it wraps) is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AppError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns err as an AppError, converting unknown errors to ErrInternal.
func As(err error) *AppError {
	var aErr *AppError
	if stderrors.As(err, &aErr) {
		return aErr
	}
	return NewInternal(err)
}

// UpstreamStatus returns the HTTP status reported by an upstream error, or 0.
func UpstreamStatus(err error) int {
	var aErr *AppError
	if !stderrors.As(err, &aErr) || aErr.Code != ErrUpstream {
		return 0
	}
	status, _ := aErr.Details["status"].(int)
	return status
}
