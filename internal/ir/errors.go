package ir

import (
	"errors"
	"fmt"
)

// Error represents a compile-time or post-process failure.
//
// Errors include:
//   - Type errors: an operand or result type outside an operation's accepted set
//   - Unresolved references: a name not present at the indicated nest depth
//   - Scope overflow: a nest depth deeper than the enclosing dataset scopes
//   - Unsupported operations: a dialect or External cannot express a value
//   - Malformed results: a backend response that does not fit post-processing
//
// None of these are retried; retries apply to transport failures only.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Subject is the textual form of the offending reference, operation,
	// duration or part, so the error is actionable without node indices.
	Subject string
}

// ErrorCode categorizes compiler errors.
type ErrorCode string

const (
	// ErrCodeTypeError indicates an operand/result type mismatch.
	ErrCodeTypeError ErrorCode = "TYPE_ERROR"

	// ErrCodeUnresolvedReference indicates a name absent at its nest depth.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeScopeOverflow indicates a nest depth beyond the available frames.
	ErrCodeScopeOverflow ErrorCode = "SCOPE_OVERFLOW"

	// ErrCodeUnsupportedOperation indicates an inexpressible operation.
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeMalformedResult indicates a backend response of the wrong shape.
	ErrCodeMalformedResult ErrorCode = "MALFORMED_RESULT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, subject, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NewTypeError creates an Error for a type mismatch at subject.
func NewTypeError(subject, format string, args ...any) *Error {
	return newError(ErrCodeTypeError, subject, format, args...)
}

// NewUnresolvedError creates an Error for a reference that does not resolve.
func NewUnresolvedError(subject, format string, args ...any) *Error {
	return newError(ErrCodeUnresolvedReference, subject, format, args...)
}

// NewScopeOverflowError creates an Error for a reference that went too deep.
func NewScopeOverflowError(subject string, nest, depth int) *Error {
	return newError(ErrCodeScopeOverflow, subject, "went too deep: nest %d exceeds %d enclosing scopes", nest, depth)
}

// NewUnsupportedError creates an Error naming the exact unsupported value.
func NewUnsupportedError(subject, format string, args ...any) *Error {
	return newError(ErrCodeUnsupportedOperation, subject, format, args...)
}

// NewMalformedError creates an Error for a backend response of the wrong shape.
func NewMalformedError(subject, format string, args ...any) *Error {
	return newError(ErrCodeMalformedResult, subject, format, args...)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTypeError returns true if err wraps a TYPE_ERROR.
func IsTypeError(err error) bool { return hasCode(err, ErrCodeTypeError) }

// IsUnresolvedError returns true if err wraps an UNRESOLVED_REFERENCE.
func IsUnresolvedError(err error) bool { return hasCode(err, ErrCodeUnresolvedReference) }

// IsScopeOverflowError returns true if err wraps a SCOPE_OVERFLOW.
func IsScopeOverflowError(err error) bool { return hasCode(err, ErrCodeScopeOverflow) }

// IsUnsupportedError returns true if err wraps an UNSUPPORTED_OPERATION.
func IsUnsupportedError(err error) bool { return hasCode(err, ErrCodeUnsupportedOperation) }

// IsMalformedError returns true if err wraps a MALFORMED_RESULT.
func IsMalformedError(err error) bool { return hasCode(err, ErrCodeMalformedResult) }
