// Package apperror defines the error taxonomy shared by every layer.
//
// Storage backends, the dataset merger and the services all return errors that
// wrap one of the sentinels below. Only the HTTP handler translates them into
// status codes, so nothing upstream ever inspects a backend-specific error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("rate limited")
	ErrStore       = errors.New("store error")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying backend error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// NotFound reports a missing document. It is a signal, not a failure:
// the dataset merger turns it into an empty collection.
func NotFound(key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("document %s not found", key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// RateLimited returns an AppError for a second submission from the same source.
// HTTP handlers map this to 429 Too Many Requests.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// Store wraps a backend failure. op names what was being attempted
// (e.g. "reading 2024-01-01-microrager.json").
func Store(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStore,
		Message: op,
		Cause:   cause,
	}
}
