package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type of the service layer.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the addressed resource does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnauthenticated indicates a webhook signature mismatch.
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeDependencyUnavailable indicates the index, completion backend or LINE failed.
	ErrCodeDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	// ErrCodePersistenceFailed indicates a database write failed.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeInternal is everything else.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// HTTPStatus maps a code to its response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeDependencyUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AIError represents a structured error of the service layer.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AIError) WithContext(key string, value any) *AIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Convenience constructors for common error types.

func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

func NotFound(msg string) *AIError {
	return &AIError{Code: ErrCodeNotFound, Message: msg}
}

func Unauthenticated(msg string) *AIError {
	return &AIError{Code: ErrCodeUnauthenticated, Message: msg}
}

func RateLimitExceeded(msg string) *AIError {
	return &AIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

func DependencyUnavailable(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeDependencyUnavailable, Message: msg, Cause: cause}
}

func PersistenceFailed(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodePersistenceFailed, Message: msg, Cause: cause}
}

func Internal(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if any error in the chain is an AIError with the code.
func IsCode(err error, code ErrorCode) bool {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code
	}
	return defaultCode
}
