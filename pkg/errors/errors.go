package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes exposed on the wire. Clients branch on these, not on
// messages.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeRoleMismatch       = "ROLE_MISMATCH"
	CodeCacheMiss          = "CACHE_MISS"
)

// Error is the domain error type: a stable code, an HTTP status and a
// human-readable message, optionally wrapping an underlying cause. The
// cause never reaches the wire.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an Error without a cause.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an Error carrying err as its cause.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Sentinels for the common failure modes. Use Clone to attach a specific
// message without mutating the shared value.
var (
	ErrInvalidCredentials = New(CodeInvalidCredentials, http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrForbidden          = New(CodeForbidden, http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New(CodeUnauthorized, http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New(CodeConflict, http.StatusConflict, "conflict")
	ErrValidation         = New(CodeValidation, http.StatusBadRequest, "validation failed")
	ErrInternal           = New(CodeInternal, http.StatusInternalServerError, "internal server error")
	ErrRoleMismatch       = New(CodeRoleMismatch, http.StatusConflict, "email already registered with a different role")
	ErrCacheMiss          = New(CodeCacheMiss, http.StatusNotFound, "cache miss")
)

// Clone copies a sentinel, overriding its message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}

// FromError coerces any error into an *Error, defaulting unknown errors to
// an internal failure so raw messages never leak to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return Wrap(err, CodeInternal, http.StatusInternalServerError, ErrInternal.Message)
}
