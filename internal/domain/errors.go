// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Error categories used across the application. Every domain-level failure
// wraps exactly one of these sentinels so callers can classify with errors.Is.
var (
	// ErrValidation is returned when input data fails shape or range checks.
	// Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity does not exist.
	// Terminal, never retried.
	ErrNotFound = errors.New("not found")

	// ErrBusinessRule is returned when an operation violates a business rule,
	// such as an illegal status transition or a duplicate active job.
	ErrBusinessRule = errors.New("business rule violated")

	// ErrExternalService is returned when a collaborator (LLM, storage, ...)
	// fails in a way that may resolve on retry.
	ErrExternalService = errors.New("external service failure")

	// ErrTimeout is returned when an operation exceeds its hard time limit.
	// Retryable while attempts remain.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable reports whether the orchestrator may retry the operation that
// produced err. Only external service failures and timeouts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrTimeout)
}

// ValidationError describes a failed write-time attribute check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Unwrap ties every ValidationError to the ErrValidation category.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// BusinessRuleError carries the violated rule and enough context for the
// caller to explain the rejection, e.g. the allowed transitions for a status.
type BusinessRuleError struct {
	Rule    string
	Message string
	Allowed []string
}

func (e *BusinessRuleError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("%s: %s (allowed: %v)", e.Rule, e.Message, e.Allowed)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error {
	return ErrBusinessRule
}

// ExternalServiceError wraps a collaborator failure with the service name so
// operators can tell which dependency misbehaved.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

// Unwrap returns ErrExternalService so errors.Is classification works; the
// original cause remains reachable via the Err field.
func (e *ExternalServiceError) Unwrap() error {
	return ErrExternalService
}

// NewExternalServiceError wraps err as a retryable collaborator failure.
func NewExternalServiceError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}
