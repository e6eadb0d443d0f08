package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// Common synthesis errors
var (
	// ErrEmptyText indicates a request without text to speak
	ErrEmptyText = errors.New("text is required")

	// ErrBackendStatus indicates the backend answered with a non-2xx status
	ErrBackendStatus = errors.New("unexpected backend status")

	// ErrRateLimited indicates the outbound limiter could not grant a slot
	// before the request deadline
	ErrRateLimited = errors.New("backend rate limit exceeded")
)

// TTSError represents a synthesis error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// Detail is the client-facing description: the message and its cause,
// without the code.
func (e *TTSError) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"

	// Backend errors
	ErrorCodeBackendFailure ErrorCode = "BACKEND_FAILURE"
	ErrorCodeBackendTimeout ErrorCode = "BACKEND_TIMEOUT"

	// Storage errors
	ErrorCodeCacheFailure ErrorCode = "CACHE_FAILURE"

	// System errors
	ErrorCodeInternal ErrorCode = "INTERNAL"
)

// NewTTSError creates a new TTS error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error code to a response status.
func (e *TTSError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidInput:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeBackendFailure, ErrorCodeBackendTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Counted reports whether the error belongs in the error counter. Client
// mistakes do not.
func (e *TTSError) Counted() bool {
	switch e.Code {
	case ErrorCodeInvalidInput, ErrorCodeNotFound:
		return false
	default:
		return true
	}
}

// AsTTSError returns err as a *TTSError, wrapping anything else as an
// internal error.
func AsTTSError(err error) *TTSError {
	var te *TTSError
	if errors.As(err, &te) {
		return te
	}
	return NewTTSError(ErrorCodeInternal, "internal error", err)
}
