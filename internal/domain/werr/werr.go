// Package werr defines the closed set of error kinds used across the queue,
// flow interpreter, and API layers, plus their HTTP status mapping (§7).
package werr

import (
	"errors"
	"net/http"
)

// Kind is one of the closed set of error kinds named by the specification.
type Kind string

const (
	KindBadRequest           Kind = "bad_request"
	KindNotAuthorized        Kind = "not_authorized"
	KindPermissionDenied     Kind = "permission_denied"
	KindNotFound             Kind = "not_found"
	KindBadGateway           Kind = "bad_gateway"
	KindInternalErr          Kind = "internal_err"
	KindExecutionErr         Kind = "execution_err"
	KindCanceled             Kind = "canceled"
	KindSuspendedDisapproved Kind = "suspended_disapproved"
	KindZombie               Kind = "zombie"
)

var statusByKind = map[Kind]int{
	KindBadRequest:           http.StatusBadRequest,
	KindNotAuthorized:        http.StatusUnauthorized,
	KindPermissionDenied:     http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindBadGateway:           http.StatusBadGateway,
	KindInternalErr:          http.StatusInternalServerError,
	KindExecutionErr:         http.StatusInternalServerError,
	KindCanceled:             http.StatusOK,
	KindSuspendedDisapproved: http.StatusOK,
	KindZombie:               http.StatusInternalServerError,
}

// Error is the concrete error type carried by every werr-producing call site.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func BadRequest(message string) *Error    { return New(KindBadRequest, message) }
func NotAuthorized(message string) *Error { return New(KindNotAuthorized, message) }
func PermissionDenied(message string) *Error {
	return New(KindPermissionDenied, message)
}
func NotFound(message string) *Error    { return New(KindNotFound, message) }
func BadGateway(message string) *Error  { return New(KindBadGateway, message) }
func Internal(message string) *Error    { return New(KindInternalErr, message) }
func Canceled(message string) *Error    { return New(KindCanceled, message) }
func Zombie(message string) *Error      { return New(KindZombie, message) }

func SuspendedDisapproved(message string) *Error {
	return New(KindSuspendedDisapproved, message)
}

// Execution wraps a module/script failure, preserving the structured error
// shape it carried before being surfaced through the queue or flow layers.
func Execution(message string, cause error) *Error {
	return Wrap(KindExecutionErr, message, cause)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternalErr for
// untyped errors so every call site has a safe status to fall back to.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalErr
}

// HTTPStatus maps any error — werr.Error or plain — to an HTTP status code.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
