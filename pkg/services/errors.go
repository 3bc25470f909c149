// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/actiond/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidScope   = errors.New("invalid scope")

	// Business Logic Conflicts (409 Conflict).
	ErrActionDisabled        = errors.New("action definition is disabled")
	ErrExecutionNotRetryable = errors.New("execution cannot be retried")
	ErrRetryLimitReached     = errors.New("execution reached the retry limit")

	// Re-exported persistence sentinels so callers depend on one package.
	ErrActionDefinitionNotFound  = persistence.ErrActionDefinitionNotFound
	ErrTriggerMappingNotFound    = persistence.ErrTriggerMappingNotFound
	ErrExecutionNotFound         = persistence.ErrExecutionNotFound
	ErrExecutionAlreadyFinalized = persistence.ErrExecutionAlreadyFinalized
	ErrDuplicateActionName       = persistence.ErrDuplicateActionName
	ErrDuplicateTriggerMapping   = persistence.ErrDuplicateTriggerMapping
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidScope)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrActionDisabled) ||
		errors.Is(err, ErrExecutionNotRetryable) ||
		errors.Is(err, ErrRetryLimitReached) ||
		persistence.IsConflict(err)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	if err == nil {
		err = ErrInvalidRequest
	} else if !errors.Is(err, ErrInvalidRequest) {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: err}
}
