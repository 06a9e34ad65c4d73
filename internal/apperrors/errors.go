// Package apperrors defines the error taxonomy shared by the ingestion
// pipeline and the HTTP layer, and maps it onto status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	ErrParse         = errors.New("parse failed")
	ErrStorage       = errors.New("storage error")
)

// AppError carries a user-facing message and the status code it maps to.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Validation returns a 400 error with the given message.
func Validation(message string) *AppError {
	return New(ErrValidation, http.StatusBadRequest, message)
}

// NotFound returns a 404 error with the given message.
func NotFound(message string) *AppError {
	return New(ErrNotFound, http.StatusNotFound, message)
}

// Storage wraps a backing-store failure.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// FetchError is returned when a remote feed or sitemap answers with a
// non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Failed to fetch %s: %d %s", e.URL, e.StatusCode, e.Body)
}

func (e *FetchError) Unwrap() error {
	return ErrUpstreamFetch
}

// ParseError is returned when a fetched body is not in a recognised shape.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// HTTPStatusCode maps an error onto the status code the API answers with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
