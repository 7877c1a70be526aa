// Package apperr defines the error kinds shared by every component and the
// mapping from those kinds to HTTP responses.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure. Components return kinds; callers never
// reinterpret them.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindPayloadTooLarge    Kind = "PAYLOAD_TOO_LARGE"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindUpstream           Kind = "UPSTREAM_ERROR"
	KindInternal           Kind = "INTERNAL"
)

var (
	// ErrInvalidInput is returned for malformed requests or unsupported files.
	ErrInvalidInput = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	// ErrPayloadTooLarge is returned when an upload exceeds the size limit.
	ErrPayloadTooLarge = &Error{Kind: KindPayloadTooLarge, Message: "file too large"}
	// ErrUnauthorized is returned for missing, malformed or expired tokens.
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "Authentication required"}
	// ErrInvalidCredentials is returned when login fails for any reason.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid username or password"}
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = &Error{Kind: KindConflict, Message: "already exists"}
	// ErrNotFound is returned when a record does not exist or is not owned by the caller.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrUpstream is returned when the inference service fails.
	ErrUpstream = &Error{Kind: KindUpstream, Message: "inference service error"}
	// ErrInternal is returned for everything else.
	ErrInternal = &Error{Kind: KindInternal, Message: "Server error"}
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Detail is safe to return to clients (e.g. upstream status and body).
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnauthorized, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    Kind   `json:"code"`
	Details string `json:"details,omitempty"`
}

// Response converts err into a status code and a client-safe body.
// Internal errors never expose their cause.
func Response(err error) (int, ErrorResponse) {
	kind := KindOf(err)
	var appErr *Error
	if kind == KindInternal || !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Message: ErrInternal.Message,
			Code:    KindInternal,
		}
	}
	return HTTPStatus(kind), ErrorResponse{
		Message: appErr.Message,
		Code:    kind,
		Details: appErr.Detail,
	}
}
