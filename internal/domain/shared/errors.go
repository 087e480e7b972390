package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by how the caller has to react to it
type ErrorKind string

const (
	// KindValidation marks malformed input. Events carrying it are dead-lettered, never retried.
	KindValidation ErrorKind = "VALIDATION"
	// KindTransient marks broker/store unavailability. Retry with backoff, do not acknowledge.
	KindTransient ErrorKind = "TRANSIENT_INFRA"
	// KindConsistency marks data that violates an invariant (e.g. two catalog items for one identity).
	// Surfaced to an operator; processing of that item halts.
	KindConsistency ErrorKind = "CONSISTENCY_VIOLATION"
	// KindBusinessRule marks an operation that must be unreachable by construction.
	KindBusinessRule ErrorKind = "BUSINESS_RULE_VIOLATION"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches domain errors by code so sentinel comparisons survive wrapping
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: message}
}

// NewTransientError wraps an infrastructure failure that is worth retrying
func NewTransientError(message string, cause error) *DomainError {
	return &DomainError{Kind: KindTransient, Code: "TRANSIENT_INFRA", Message: message, cause: cause}
}

// NewConsistencyViolation creates an error for invariant-breaking data
func NewConsistencyViolation(code, message string) *DomainError {
	return &DomainError{Kind: KindConsistency, Code: code, Message: message}
}

// NewBusinessRuleViolation creates an error for a forbidden operation
func NewBusinessRuleViolation(code, message string) *DomainError {
	return &DomainError{Kind: KindBusinessRule, Code: code, Message: message}
}

// KindOf returns the kind of err. Errors that are not domain errors are
// infrastructure failures and therefore transient. A domain error without an
// explicit kind is a rejection by the domain and is never retried.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		if de.Kind == "" {
			return KindBusinessRule
		}
		return de.Kind
	}
	return KindTransient
}

// IsKind reports whether err is of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = &DomainError{Kind: KindTransient, Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process"}
	ErrInvalidState        = NewBusinessRuleViolation("INVALID_STATE", "Operation not allowed in current state")
)

