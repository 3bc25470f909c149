package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence errors that all implementations use.
var (
	ErrActionDefinitionNotFound  = errors.New("action definition not found")
	ErrTriggerMappingNotFound    = errors.New("trigger mapping not found")
	ErrExecutionNotFound         = errors.New("action execution not found")
	ErrExecutionAlreadyFinalized = errors.New("action execution already finalized")
	ErrDuplicateActionName       = errors.New("action name already exists")
	ErrDuplicateTriggerMapping   = errors.New("trigger mapping already exists")
)

// RepositoryError adds the failing operation and entity id to an error.
type RepositoryError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *RepositoryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewDefinitionError(op string, id int64, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: "action definition", ID: formatID(id), Err: err}
}

func NewMappingError(op string, id int64, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: "trigger mapping", ID: formatID(id), Err: err}
}

func NewExecutionError(op, executionID string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: "action execution", ID: executionID, Err: err}
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}

	return fmt.Sprintf("%d", id)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrActionDefinitionNotFound) ||
		errors.Is(err, ErrTriggerMappingNotFound) ||
		errors.Is(err, ErrExecutionNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateActionName) ||
		errors.Is(err, ErrDuplicateTriggerMapping) ||
		errors.Is(err, ErrExecutionAlreadyFinalized)
}
