// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these errors; handlers translate them into HTTP status
// codes. Each AppError wraps one sentinel so callers classify with errors.Is
// and read the client-safe message with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

type AppError struct {
	Err     error  // sentinel used for classification
	Message string // safe to show to clients
	Field   string // optional: input field that failed validation
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that a unique resource already exists. The message is
// given verbatim so callers control what the client learns.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Unauthorized reports missing or invalid credentials. Callers pass a
// generic message: it must not reveal whether an account exists or why a
// token was rejected.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
