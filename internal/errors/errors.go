package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeNotFound represents a catalog identifier that could not be resolved
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeNoMatch represents a track for which no media source candidate was found
	ErrTypeNoMatch ErrorType = "no_match"
	// ErrTypeTransfer represents a media transfer failure (fetch error or empty output)
	ErrTypeTransfer ErrorType = "transfer"
	// ErrTypeTagWrite represents a tag embedding failure (non-fatal)
	ErrTypeTagWrite ErrorType = "tag_write"
	// ErrTypeStoreIO represents a queue store persistence failure
	ErrTypeStoreIO ErrorType = "store_io"
	// ErrTypeNetwork represents network-related errors
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeRateLimit represents rate limiting errors from a provider
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeNotFound,
		Message:   message,
		Retryable: false,
	}
}

// NewNoMatchError creates a new no match error
func NewNoMatchError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeNoMatch,
		Message:   message,
		Retryable: false,
	}
}

// NewTransferError creates a new transfer failure error
func NewTransferError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTransfer,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// NewTagWriteError creates a new tag write error.
// Tag write failures are non-fatal: the download still counts as successful.
func NewTagWriteError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTagWrite,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// NewStoreIOError creates a new store persistence error
func NewStoreIOError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeStoreIO,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string, retryAfter int) *AppError {
	return &AppError{
		Type:      ErrTypeRateLimit,
		Message:   fmt.Sprintf("%s (retry after %d seconds)", message, retryAfter),
		Retryable: true,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error, unwrapping as
// needed so wrapped AppErrors keep their category.
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsNoMatchError checks if an error is a no match error
func IsNoMatchError(err error) bool {
	return GetErrorType(err) == ErrTypeNoMatch
}

// IsTagWriteError checks if an error is a tag write error
func IsTagWriteError(err error) bool {
	return GetErrorType(err) == ErrTypeTagWrite
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrTypeRateLimit
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}
