// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown               = "UNKNOWN_ERROR"
	CodeMalformedSnapshot     = "MALFORMED_SNAPSHOT"
	CodeInsufficientSnapshots = "INSUFFICIENT_SNAPSHOTS"
	CodeUnresolvableReference = "UNRESOLVABLE_REFERENCE"
	CodeDetectorFailed        = "DETECTOR_FAILED"
	CodeParseError            = "PARSE_ERROR"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeStorageError          = "STORAGE_ERROR"
	CodeConfigError           = "CONFIG_ERROR"
	CodeNotFound              = "NOT_FOUND"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrMalformedSnapshot     = New(CodeMalformedSnapshot, "malformed snapshot")
	ErrInsufficientSnapshots = New(CodeInsufficientSnapshots, "not enough snapshots")
	ErrUnresolvableReference = New(CodeUnresolvableReference, "unresolvable reference")
	ErrDetectorFailed        = New(CodeDetectorFailed, "detector failed")
	ErrParseError            = New(CodeParseError, "parse error")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrDatabaseError         = New(CodeDatabaseError, "database error")
	ErrStorageError          = New(CodeStorageError, "storage error")
	ErrConfigError           = New(CodeConfigError, "configuration error")
	ErrNotFound              = New(CodeNotFound, "resource not found")
)

// IsMalformedSnapshot checks if the error is a malformed snapshot error.
func IsMalformedSnapshot(err error) bool {
	return errors.Is(err, ErrMalformedSnapshot)
}

// IsInsufficientSnapshots checks if the error is an insufficient snapshots error.
func IsInsufficientSnapshots(err error) bool {
	return errors.Is(err, ErrInsufficientSnapshots)
}

// IsUnresolvableReference checks if the error is an unresolvable reference error.
func IsUnresolvableReference(err error) bool {
	return errors.Is(err, ErrUnresolvableReference)
}

// IsInvalidInput checks if the error is an invalid input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsStorageError checks if the error is a storage error.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageError)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
