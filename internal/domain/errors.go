package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"       // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"  // Authentication required
	EFORBIDDEN    = "forbidden"     // Permission denied
	ENOTFOUND     = "not_found"     // Resource not found
	ECONFLICT     = "conflict"      // Resource conflict (e.g., already assigned)
	EGONE         = "gone"          // Resource no longer available
	ETOOLARGE     = "too_large"     // Request entity too large
	ERATELIMIT    = "rate_limit"    // Too many requests
	ESTATE        = "invalid_state" // Transition not allowed from the current status
	ESEARCHING    = "searching"     // No eligible providers yet, matching continues
	EREVIEW       = "review"        // Business rule violation held for manual review
	EINTERNAL     = "internal"      // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "dispatch.accept")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// coder is implemented by the typed dispatch errors below so that ErrorCode
// can classify them without knowing each concrete type.
type coder interface {
	ErrorCode() string
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	var c coder
	if errors.As(err, &c) {
		return err.Error()
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Typed errors
// =============================================================================

// ValidationError represents field-level validation errors on engine input.
// It is never retried.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			return fmt.Sprintf("%s: %s %s", e.Op, field, msg)
		}
	}
	return fmt.Sprintf("%s: validation failed", e.Op)
}

func (e *ValidationError) ErrorCode() string { return EINVALID }

// Add records another field failure and returns the receiver.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// NoEligibleCandidatesError is returned by ranking when the eligibility filter
// leaves nothing to score. Callers widen the pool or escalate.
type NoEligibleCandidatesError struct {
	RequestID  string
	Considered int
}

func (e *NoEligibleCandidatesError) Error() string {
	return fmt.Sprintf("no eligible providers for request %s (%d considered)", e.RequestID, e.Considered)
}

func (e *NoEligibleCandidatesError) ErrorCode() string { return ESEARCHING }

// ConcurrentAssignmentConflict is returned to a provider whose accept lost the
// race for a request.
type ConcurrentAssignmentConflict struct {
	RequestID  string
	ProviderID string
}

func (e *ConcurrentAssignmentConflict) Error() string {
	return fmt.Sprintf("request %s is no longer available", e.RequestID)
}

func (e *ConcurrentAssignmentConflict) ErrorCode() string { return EGONE }

// PriceGuaranteeViolation is raised when the billed amount exceeds 110% of the
// quoted final price. Settlement stays blocked until a person reviews it.
type PriceGuaranteeViolation struct {
	RequestID string
	Quoted    int64
	Charged   int64
	ReviewID  string
}

func (e *PriceGuaranteeViolation) Error() string {
	return fmt.Sprintf("charged %d exceeds 110%% of quoted %d for request %s", e.Charged, e.Quoted, e.RequestID)
}

func (e *PriceGuaranteeViolation) ErrorCode() string { return EREVIEW }

// StateTransitionError reports a rejected transition together with the
// authoritative status the request is in.
type StateTransitionError struct {
	RequestID string
	Current   RequestStatus
	Target    RequestStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition request %s from %s to %s", e.RequestID, e.Current, e.Target)
}

func (e *StateTransitionError) ErrorCode() string { return ESTATE }

// VersionConflictError reports a write based on a stale copy of a request.
// The status still matched, but another writer saved in between.
type VersionConflictError struct {
	RequestID string
	Expected  int
	Current   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("request %s was changed by another update, reload and retry", e.RequestID)
}

func (e *VersionConflictError) ErrorCode() string { return ECONFLICT }
