package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error raised while issuing backend requests.
//
// Runtime errors include:
//   - Request failures: the requester failed after all retries
//   - Query budget: an evaluation issued more queries than allowed
//   - Missing requester: no requester serves the query's engine
//
// Compile-time problems (type errors, unsupported operations, malformed
// results) are reported as *ir.Error instead.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID identifies the affected request.
	RequestID string

	// Engine is the backend engine of the request.
	Engine string

	// Attempts is the number of times the request was sent.
	Attempts int

	// Err is the underlying transport error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRequestFailed indicates the requester returned an error.
	ErrCodeRequestFailed RuntimeErrorCode = "REQUEST_FAILED"

	// ErrCodeQueryBudget indicates an evaluation exceeded its query budget.
	ErrCodeQueryBudget RuntimeErrorCode = "QUERY_BUDGET_EXCEEDED"

	// ErrCodeNoRequester indicates no requester is registered for an engine.
	ErrCodeNoRequester RuntimeErrorCode = "NO_REQUESTER"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request=%s, engine=%s)", e.RequestID, e.Engine)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the transport error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRequestError returns true if the error is a failed request.
// Uses errors.As to handle wrapped errors.
func IsRequestError(err error) bool {
	return hasRuntimeCode(err, ErrCodeRequestFailed)
}

// IsBudgetError returns true if the error is an exceeded query budget.
func IsBudgetError(err error) bool {
	return hasRuntimeCode(err, ErrCodeQueryBudget)
}

// IsNoRequesterError returns true if no requester served the query.
func IsNoRequesterError(err error) bool {
	return hasRuntimeCode(err, ErrCodeNoRequester)
}

func hasRuntimeCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewRequestError creates a RuntimeError for a request that failed after
// attempts tries.
func NewRequestError(req Request, attempts int, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeRequestFailed,
		Message:   fmt.Sprintf("request failed after %d attempt(s)", attempts),
		RequestID: req.ID,
		Engine:    req.Query.Engine,
		Attempts:  attempts,
		Err:       err,
	}
}

// NewBudgetError creates a RuntimeError for an exceeded query budget.
func NewBudgetError(issued, max int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQueryBudget,
		Message: fmt.Sprintf("evaluation issued too many queries (%d > %d)", issued, max),
	}
}

// NewNoRequesterError creates a RuntimeError for an unrouted request.
func NewNoRequesterError(req Request) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNoRequester,
		Message:   fmt.Sprintf("no requester for engine %q", req.Query.Engine),
		RequestID: req.ID,
		Engine:    req.Query.Engine,
	}
}
