// Package errors defines the error taxonomy shared by the index, the
// ingestion collaborators and the HTTP layer, and maps it to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrLockConflict means another writer holds the index; retry later.
	ErrLockConflict = errors.New("index write lock held by another writer")
	// ErrIOFailure wraps storage errors; the index stays at its last commit.
	ErrIOFailure = errors.New("index storage failure")
	// ErrMalformedQuery is a user error in query syntax.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrExtractionEmpty signals that a source had no extractable text.
	ErrExtractionEmpty = errors.New("no extractable text")
	// ErrUnsupportedFormat is returned for files no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("service unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
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

// IOFailure wraps err so that it matches both ErrIOFailure and err.
func IOFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIOFailure, err)
}

// MalformedQuery builds an ErrMalformedQuery with a description.
func MalformedQuery(format string, args ...any) error {
	return Newf(ErrMalformedQuery, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrLockConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtractionEmpty), errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
