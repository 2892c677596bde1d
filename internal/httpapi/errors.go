package httpapi

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	msgBadRequest     = "Bad Request"
	msgNotFound       = "Resource not found"
	msgInternalServer = "Internal server error"
	msgUnauthorized   = "Unauthorized"
	msgConflict       = "Conflict"
)

// HTTPError is an error with an associated HTTP status code and a
// user-facing message.
type HTTPError struct {
	cause   error
	Code    int
	Message string
	Details string // optional, rendered next to the message
}

func (he *HTTPError) Error() string {
	return he.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (he *HTTPError) Unwrap() error {
	return he.cause
}

// WithDetails returns a copy of he carrying details.
func (he *HTTPError) WithDetails(details string) *HTTPError {
	cp := *he
	cp.Details = details
	return &cp
}

func defaultMessageIfEmpty(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

// NewHTTPError creates an HTTPError with a code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{cause: errors.New(message), Code: code, Message: message}
}

// NewHTTPErrorWrap creates an HTTPError wrapping cause.
func NewHTTPErrorWrap(code int, message string, cause error) *HTTPError {
	return &HTTPError{cause: cause, Code: code, Message: message}
}

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, defaultMessageIfEmpty(message, msgBadRequest))
}

func ErrBadRequestWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusBadRequest, defaultMessageIfEmpty(message, msgBadRequest), cause)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, defaultMessageIfEmpty(message, msgUnauthorized))
}

// ErrNotFound is also used for rows owned by someone else, so callers can
// not probe for other users' ids.
func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, defaultMessageIfEmpty(message, msgNotFound))
}

func ErrConflict(message string) *HTTPError {
	return NewHTTPError(http.StatusConflict, defaultMessageIfEmpty(message, msgConflict))
}

func ErrInternal(message string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, defaultMessageIfEmpty(message, msgInternalServer))
}

// ErrInternalWrap hides cause from the client but keeps it for logging.
func ErrInternalWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusInternalServerError, msgInternalServer, fmt.Errorf("%s: %w", message, cause))
}
