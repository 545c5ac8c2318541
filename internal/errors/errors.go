// Package errors provides the typed failures returned by beacon services.
//
// Services return *Error values; transports map them with Code.HTTPStatus.
// Role failures (not the leader, not a member) use CodeForbidden. Authentication
// failures use CodeUnauthorized or CodeInvalidCredentials so clients can tell
// "not allowed" apart from "bad request".
//
//	if errors.Is(err, errors.ErrExpired) {
//	    // beacon is over
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) && domainErr.Reason() == errors.ReasonAlreadyMember {
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeValidation         Code = "VALIDATION"
	CodeConflict           Code = "CONFLICT"
	CodeInternal           Code = "INTERNAL"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeExpired            Code = "EXPIRED"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeAllocationFailed   Code = "ALLOCATION_EXHAUSTED"
	CodePartialCascade     Code = "PARTIAL_CASCADE"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeUnavailable        Code = "UNAVAILABLE"
)

// Reasons attached to conflict and forbidden errors under the "reason" detail key.
const (
	ReasonAlreadyMember      = "already_member"
	ReasonAlreadyFollowing   = "already_following"
	ReasonAlreadyLeading     = "already_leading"
	ReasonShortcodeCollision = "shortcode_collision"
	ReasonNotLeader          = "not_leader"
	ReasonNotMember          = "not_member"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized, CodeInvalidCredentials, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeExpired:
		return http.StatusGone
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeAllocationFailed, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// GetStatus satisfies huma.StatusError.
func (e *Error) GetStatus() int { return e.HTTPStatus() }

// Reason returns the "reason" detail, or "" when none was attached.
func (e *Error) Reason() string {
	if d, ok := e.Details.(map[string]any); ok {
		if r, ok := d["reason"].(string); ok {
			return r
		}
	}
	return ""
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists      = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden          = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrTokenExpired       = &Error{Code: CodeTokenExpired, Message: "token expired"}
	ErrExpired            = &Error{Code: CodeExpired, Message: "expired"}
	ErrInvalidState       = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrAllocationFailed   = &Error{Code: CodeAllocationFailed, Message: "allocation exhausted"}
	ErrPartialCascade     = &Error{Code: CodePartialCascade, Message: "partial cascade failure"}
	ErrRateLimited        = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrUnavailable        = &Error{Code: CodeUnavailable, Message: "unavailable"}
)

// newError builds an *Error with the given code and message.
func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error { return newError(CodeNotFound, msg) }

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error { return newError(CodeAlreadyExists, msg) }

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error { return newError(CodeUnauthorized, msg) }

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error { return newError(CodeForbidden, msg) }

func Validation(msg string) *Error { return newError(CodeValidation, msg) }

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return newError(CodeValidation, fmt.Sprintf(format, args...))
}

// ValidationWithDetails attaches field-level details to a validation error.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func Conflict(msg string) *Error { return newError(CodeConflict, msg) }

func Internal(msg string) *Error { return newError(CodeInternal, msg) }

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

func InvalidCredentials(msg string) *Error { return newError(CodeInvalidCredentials, msg) }

func TokenExpired(msg string) *Error { return newError(CodeTokenExpired, msg) }

// Expired reports an operation against a beacon past its end time.
func Expired(msg string) *Error { return newError(CodeExpired, msg) }

// InvalidState reports an operation the target's current state does not allow.
func InvalidState(msg string) *Error { return newError(CodeInvalidState, msg) }

// AllocationExhausted reports that a bounded retry ran out of attempts.
func AllocationExhausted(msg string) *Error { return newError(CodeAllocationFailed, msg) }

// PartialCascade reports a multi-step cascade that stopped part way.
// completed lists the steps that landed, failed names the step that did not.
func PartialCascade(name string, completed []string, failed string, cause error) *Error {
	return &Error{
		Code:    CodePartialCascade,
		Message: fmt.Sprintf("%s interrupted at %s", name, failed),
		Details: map[string]any{"cascade": name, "completed": completed, "failed": failed},
		cause:   cause,
	}
}

func RateLimited(msg string) *Error { return newError(CodeRateLimited, msg) }

// Unavailable reports a dependency that cannot take the request right now.
func Unavailable(msg string) *Error { return newError(CodeUnavailable, msg) }

// ConflictReason creates a conflict error tagged with a reason.
func ConflictReason(reason, msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg, Details: map[string]any{"reason": reason}}
}

// NotLeader creates the forbidden error returned to non-leaders.
func NotLeader(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, Details: map[string]any{"reason": ReasonNotLeader}}
}

// NotMember creates the forbidden error returned to non-participants.
func NotMember(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, Details: map[string]any{"reason": ReasonNotMember}}
}
