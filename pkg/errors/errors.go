package errors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Status            int    `json:"status"`
	Field             string `json:"field,omitempty"`
	Transition        string `json:"transition,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Err               error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfter returns the retry hint as a duration.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return time.Duration(e.RetryAfterSeconds) * time.Second
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Error codes surfaced by the mutation boundary.
const (
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeNotFound           = "NOT_FOUND"
	CodeTimeout            = "TIMEOUT"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Predefined errors for common scenarios.
var (
	ErrPermissionDenied   = New(CodePermissionDenied, http.StatusForbidden, "permission denied")
	ErrRateLimited        = New(CodeRateLimited, http.StatusTooManyRequests, "too many requests")
	ErrInvalidArgument    = New(CodeInvalidArgument, http.StatusBadRequest, "invalid argument")
	ErrFailedPrecondition = New(CodeFailedPrecondition, http.StatusPreconditionFailed, "precondition failed")
	ErrNotFound           = New(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrTimeout            = New(CodeTimeout, http.StatusGatewayTimeout, "operation timed out")
	ErrStorageUnavailable = New(CodeStorageUnavailable, http.StatusServiceUnavailable, "storage unavailable")
	ErrConflict           = New(CodeConflict, http.StatusConflict, "conflict")
	ErrUnauthorized       = New(CodeUnauthorized, http.StatusUnauthorized, "unauthorized")
	ErrInternal           = New(CodeInternal, http.StatusInternalServerError, "internal server error")
)

// PermissionDenied builds a role-aware denial message.
func PermissionDenied(role, permission string) *Error {
	msg := fmt.Sprintf("role %s is not allowed to perform %s", role, permission)
	if role == "" {
		msg = fmt.Sprintf("an assigned role is required to perform %s", permission)
	}
	return Clone(ErrPermissionDenied, msg)
}

// RateLimited carries the wait duration, rounded up to whole seconds.
func RateLimited(action string, retryAfter time.Duration) *Error {
	e := Clone(ErrRateLimited, fmt.Sprintf("too many %s requests", action))
	if retryAfter > 0 {
		e.RetryAfterSeconds = int(math.Ceil(retryAfter.Seconds()))
		e.Message = fmt.Sprintf("too many %s requests, retry in %ds", action, e.RetryAfterSeconds)
	}
	return e
}

// InvalidArgument reports a bad input field.
func InvalidArgument(field, message string) *Error {
	e := Clone(ErrInvalidArgument, message)
	e.Field = field
	return e
}

// FailedPrecondition reports a disallowed transition or unmet status requirement.
func FailedPrecondition(transition, message string) *Error {
	e := Clone(ErrFailedPrecondition, message)
	e.Transition = transition
	return e
}

// FromStorage classifies an error returned by a storage collaborator.
func FromStorage(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTimeout.Code, ErrTimeout.Status, "operation timed out; the write may or may not have been applied")
	}
	return Wrap(err, ErrStorageUnavailable.Code, ErrStorageUnavailable.Status, message)
}

// KindOf returns the error code for any error, or empty for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTimeout.Code, ErrTimeout.Status, ErrTimeout.Message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
