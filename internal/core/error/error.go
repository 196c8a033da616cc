package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SearchUnavailableMessage describes vector search failures.
	SearchUnavailableMessage = "search unavailable"
	// NoDocumentsMessage describes a retrieval that produced nothing usable.
	NoDocumentsMessage = "no documents"
	// GenerationUnavailableMessage describes text-generation failures.
	GenerationUnavailableMessage = "generation unavailable"
	// MalformedOutputMessage describes classifier output that breaks its contract.
	MalformedOutputMessage = "malformed classifier output"
	// InvariantMessage describes a state that should not be reachable.
	InvariantMessage = "invalid conversation state"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapQdrant maps vector search failures to a 503 with a safe message.
func WrapQdrant(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusServiceUnavailable, SearchUnavailableMessage)
}

// WrapModel maps chat model failures to a 502 with a safe message.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, GenerationUnavailableMessage)
}

// Invariant reports a state invariant violation.
func Invariant(format string, args ...any) error {
	return New(fmt.Errorf(format, args...), http.StatusInternalServerError, InvariantMessage)
}

// SafeMessage returns the message that may be shown to an end user for err.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
