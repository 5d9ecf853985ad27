// Package apperr classifies application errors so the HTTP layer can map
// them to status codes without knowing where they came from.
package apperr

import (
	"errors"
	"net/http"
)

// Error classes. Wrap one of these (directly or through *Error) and the
// HTTP layer picks the status code with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Error carries a caller-facing message on top of an error class.
type Error struct {
	Err     error
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured context (for example per-field
// validation failures) that is returned to the caller.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func Validation(msg string) *Error      { return &Error{Err: ErrValidation, Message: msg} }
func Unauthenticated(msg string) *Error { return &Error{Err: ErrUnauthenticated, Message: msg} }
func Forbidden(msg string) *Error       { return &Error{Err: ErrForbidden, Message: msg} }
func NotFound(msg string) *Error        { return &Error{Err: ErrNotFound, Message: msg} }
func Conflict(msg string) *Error        { return &Error{Err: ErrConflict, Message: msg} }

// HTTPStatus maps err to a status code. Unclassified errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to send to a caller. Unclassified errors
// never leak their cause.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// DetailsOf returns the details of the outermost *Error in err's chain.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
