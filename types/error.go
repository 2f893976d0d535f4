package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
)

// Service error codes
const (
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Hierarchy error codes
const (
	ErrSourceUnavailable    ErrorCode = "SOURCE_UNAVAILABLE"
	ErrHierarchyBuildFailed ErrorCode = "HIERARCHY_BUILD_FAILED"
	ErrCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"
	ErrStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Source     string    `json:"source,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSource names the hierarchy source (config, runtime, legacy, workspace, database).
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// AsError extracts a *Error from anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewSourceUnavailableError reports a hierarchy source that could not be read.
func NewSourceUnavailableError(source string, cause error) *Error {
	return NewError(ErrSourceUnavailable, source+" source unavailable").
		WithSource(source).
		WithCause(cause).
		WithRetryable(true)
}
