// Package domainerrors defines the canonical error kinds surfaced by the
// trust/compliance engine. Services construct these; transport translates them
// to HTTP statuses. Codes are stable identifiers, not Go types.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a canonical error kind.
type Code string

const (
	// CodeInvalidInput covers schema or range violations at trust boundaries.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeInvalidCredentials covers any login primary-step failure. The same
	// code and message are used for unknown-email and wrong-password so the
	// two are indistinguishable to the caller.
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	// CodeInvalidMfaCode means the primary step succeeded but the second
	// factor was wrong or the challenge was unknown/expired.
	CodeInvalidMfaCode Code = "INVALID_MFA_CODE"
	// CodeAccountLocked means the rolling-failure threshold was exceeded.
	CodeAccountLocked Code = "ACCOUNT_LOCKED"
	// CodeUnauthorized covers missing/invalid service id or session.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden means authenticated but insufficient permission.
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound means the aggregate does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict covers uniqueness violations, already-exists, and illegal
	// state transitions.
	CodeConflict Code = "CONFLICT"
	// CodePrecondition means the aggregate is not in a state that permits the
	// operation (e.g., appeal on a non-active sanction).
	CodePrecondition Code = "PRECONDITION_FAILED"
	// CodeDependencyUnavailable means a downstream dependency failed.
	CodeDependencyUnavailable Code = "DEPENDENCY_UNAVAILABLE"
	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "INTERNAL"
)

// Error carries a code, a user-safe message, and optional structured details.
// Messages must not leak PII or internal state.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code and user-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause that is preserved for logs but never serialized.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy of the error carrying structured details for the
// error envelope (e.g., retry-after seconds on ACCOUNT_LOCKED).
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP surface per the error table.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeInvalidMfaCode, CodeAccountLocked, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodePrecondition:
		return http.StatusConflict
	case CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
