package intel

import (
	"errors"
	"fmt"
)

// ErrorCode defines error classification codes for structured error handling.
type ErrorCode string

// Error codes for the intelligence pipeline.
const (
	ErrCodeConfiguration         ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrCodeUpstreamData          ErrorCode = "UPSTREAM_DATA_ERROR"
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	ErrCodeEmptyGeneration       ErrorCode = "EMPTY_GENERATION"
	ErrCodeEmptyContent          ErrorCode = "EMPTY_CONTENT"
	ErrCodeMalformedJSON         ErrorCode = "MALFORMED_JSON"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with classification code.
// Status carries the upstream HTTP status when one is known and Details
// holds diagnostic fields that are safe to return to the caller.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a diagnostic field and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError extracts the structured error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// IsErrorCode checks if an error matches a specific error code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
