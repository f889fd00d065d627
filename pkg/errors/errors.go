// Package errors defines the sentinel errors shared by every layer of the
// genome service and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrParse          = errors.New("malformed sequence file")
	ErrInvalidQuery   = errors.New("invalid query sequence")
	ErrInvalidInput   = errors.New("invalid input")
	ErrGenomeNotFound = errors.New("genome not found")
	ErrRegionNotFound = errors.New("region not found")
	ErrGenomeExists   = errors.New("genome already exists")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrUnavailable    = errors.New("service unavailable")
	ErrInternal       = errors.New("internal error")
	ErrTimeout        = errors.New("operation timed out")
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

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	code := HTTPStatusCode(err)
	return code >= 400 && code < 500
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrGenomeNotFound), errors.Is(err, ErrRegionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGenomeExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
