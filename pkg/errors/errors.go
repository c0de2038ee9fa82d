package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a stable class of failure. It doubles as the last path segment of the
// problem document type URI.
type Kind string

const (
	KindBadRequest              Kind = "bad-request"
	KindAuthenticationRequired  Kind = "authentication-required"
	KindInsufficientPermissions Kind = "insufficient-permissions"
	KindNotFound                Kind = "resource-not-found"
	KindConflict                Kind = "resource-conflict"
	KindValidation              Kind = "validation-error"
	KindRateLimited             Kind = "rate-limit-exceeded"
	KindInternal                Kind = "internal-server-error"
	KindUnavailable             Kind = "service-unavailable"
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	Kind          string `json:"kind"`
	RejectedInput any    `json:"rejected_input,omitempty"`
}

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Kind       Kind         `json:"kind"`
	Message    string       `json:"message"`
	Detail     string       `json:"detail,omitempty"`
	Fields     []FieldError `json:"errors,omitempty"`
	StatusCode int          `json:"-"`
	Internal   error        `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", msg, e.Internal)
	}
	return msg
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches two AppErrors of the same kind so callers can test against the sentinels below.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithDetail returns a copy carrying a caller-facing explanation of this occurrence.
func (e *AppError) WithDetail(format string, args ...any) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Detail = fmt.Sprintf(format, args...)
	return &cpy
}

// WithFields returns a copy carrying field-level validation failures.
func (e *AppError) WithFields(fields ...FieldError) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Fields = append(append([]FieldError(nil), e.Fields...), fields...)
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrBadRequest = &AppError{
		Kind:       KindBadRequest,
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Kind:       KindAuthenticationRequired,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Kind:       KindInsufficientPermissions,
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Kind:       KindNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Kind:       KindConflict,
		Message:    "Resource state conflict",
		StatusCode: http.StatusConflict,
	}

	ErrValidation = &AppError{
		Kind:       KindValidation,
		Message:    "Validation failed",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrRateLimit = &AppError{
		Kind:       KindRateLimited,
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInternalServer = &AppError{
		Kind:       KindInternal,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrUnavailable = &AppError{
		Kind:       KindUnavailable,
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// New builds a new application error with the provided metadata.
func New(kind Kind, message string, statusCode int) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an internal AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps malformed input errors with a helpful message.
func NewBadRequest(detail string) *AppError {
	return ErrBadRequest.WithDetail("%s", detail)
}

// NewValidation reports well-formed but unacceptable input.
func NewValidation(fields ...FieldError) *AppError {
	return ErrValidation.WithFields(fields...)
}

// NewConflict reports a request that is illegal for the resource's current state.
func NewConflict(detail string) *AppError {
	return ErrConflict.WithDetail("%s", detail)
}
