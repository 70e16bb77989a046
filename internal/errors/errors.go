// Package errors provides error code definitions shared across the
// record lifecycle, sync engine and storage layers.
package errors

import "fmt"

// ErrorCode identifies a failure class that callers can match on.
type ErrorCode string

const (
	// General errors
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Record errors
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Storage errors
	ErrStorage   ErrorCode = "STORAGE_UNAVAILABLE"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Sync errors
	ErrSubmission     ErrorCode = "SUBMISSION_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrRemoteAuth     ErrorCode = "REMOTE_AUTH_FAILED"

	// Config errors
	ErrConfig ErrorCode = "CONFIG_INVALID"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
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

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
