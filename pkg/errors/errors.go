package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated means there is no valid identity. Never retried.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the identity is valid but may not touch the resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is kept as an alias for handlers that speak in HTTP terms.
	ErrForbidden = ErrUnauthorized

	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrTransientNetwork = errors.New("transient network failure")
	ErrBadRequest       = errors.New("bad request")
	ErrInternalServer   = errors.New("internal server error")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", ErrUnauthenticated)
	ErrTokenExpired       = fmt.Errorf("token expired: %w", ErrUnauthenticated)

	ErrUserAlreadyExists = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrAlreadyMember     = fmt.Errorf("already a member of this room: %w", ErrConflict)

	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrFileNotFound    = fmt.Errorf("file %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrNotMember       = fmt.Errorf("not an active member of this room: %w", ErrUnauthorized)
)

// ValidationError carries the offending field so clients can render it inline.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation builds a ValidationError for field.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// ToAPIError converts any error into the JSON body written by handlers.
// Internal failures never leak their message.
func ToAPIError(err error) *APIError {
	status := HTTPStatusFromError(err)
	apiErr := &APIError{Message: err.Error(), Code: status}

	var ve *ValidationError
	if errors.As(err, &ve) {
		apiErr.Field = ve.Field
		apiErr.Message = ve.Message
	}
	if status == http.StatusInternalServerError {
		apiErr.Message = ErrInternalServer.Error()
	}
	return apiErr
}

func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransientNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus is the client-side inverse of HTTPStatusFromError.
func FromHTTPStatus(status int, message string) error {
	var base error
	switch {
	case status == http.StatusUnauthorized:
		base = ErrUnauthenticated
	case status == http.StatusForbidden:
		base = ErrUnauthorized
	case status == http.StatusNotFound:
		base = ErrNotFound
	case status == http.StatusUnprocessableEntity:
		base = ErrValidation
	case status == http.StatusConflict:
		base = ErrConflict
	case status == http.StatusBadRequest:
		base = ErrBadRequest
	case status == http.StatusTooManyRequests, status >= 500:
		base = ErrTransientNetwork
	default:
		base = ErrInternalServer
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%s: %w", message, base)
}

// IsRetryable reports whether a caller may try the same operation again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}
