// Package persistence provides the storage abstraction for action definitions,
// trigger mappings and the execution ledger.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/actiond/pkg/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Persistence interface {
	ActionDefinitions() ActionDefinitionRepository
	TriggerMappings() TriggerMappingRepository
	ActionExecutions() ActionExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ActionDefinitionRepository only ever returns valid (not soft-deleted) rows.
type ActionDefinitionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.ActionDefinition, error)
	GetByType(ctx context.Context, actionType models.ActionType) ([]*models.ActionDefinition, error)
	GetAllEnabled(ctx context.Context) ([]*models.ActionDefinition, error)
	Search(ctx context.Context, query DefinitionQuery) (*DefinitionPage, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)

	// Create assigns ID and timestamps. A name already used by a valid row
	// fails with ErrDuplicateActionName.
	Create(ctx context.Context, definition *models.ActionDefinition) error
	Update(ctx context.Context, definition *models.ActionDefinition) error
	SoftDelete(ctx context.Context, id int64, userID *int64) error
	SetEnabled(ctx context.Context, ids []int64, enabled bool, userID *int64) (int64, error)
}

// TriggerMappingRepository only ever returns valid rows.
type TriggerMappingRepository interface {
	GetByID(ctx context.Context, id int64) (*models.ActionTriggerMapping, error)
	ListByDefinition(ctx context.Context, definitionID int64) ([]*models.ActionTriggerMapping, error)

	// Candidates returns the enabled rows wired to (sourceID, event). Type and
	// scope filtering is left to the caller.
	Candidates(ctx context.Context, sourceID int64, event string) ([]*models.ActionTriggerMapping, error)

	// Exists reports whether another valid row has the same
	// (definition, trigger type, source id, workflow scope) key.
	Exists(ctx context.Context, definitionID int64, triggerType models.TriggerType, sourceID int64,
		workflowID models.Scope, excludeID int64) (bool, error)

	Create(ctx context.Context, mapping *models.ActionTriggerMapping) error
	Update(ctx context.Context, mapping *models.ActionTriggerMapping) error
	SoftDelete(ctx context.Context, id int64, userID *int64) error
	SetEnabled(ctx context.Context, id int64, enabled bool, userID *int64) error
}

// ActionExecutionRepository is the append-mostly ledger.
type ActionExecutionRepository interface {
	// Create inserts a new row; ExecutionID must be unique.
	Create(ctx context.Context, execution *models.ActionExecution) error

	// Finalize applies the single terminal write. A row already in a terminal
	// state fails with ErrExecutionAlreadyFinalized and is left untouched.
	Finalize(ctx context.Context, executionID string, outcome models.ExecutionOutcome) (*models.ActionExecution, error)

	GetByExecutionID(ctx context.Context, executionID string) (*models.ActionExecution, error)
	List(ctx context.Context, query ExecutionQuery) (*ExecutionPage, error)
	Stats(ctx context.Context, since time.Time) (*models.ExecutionStats, error)

	// RetryCandidates returns non-test rows with RetryCount < maxRetry that
	// have not been retried yet and are either Failed, or still Running and
	// started before staleBefore. Rows whose definition is disabled or deleted
	// are left out. Oldest first.
	RetryCandidates(ctx context.Context, maxRetry int, staleBefore time.Time, limit int) ([]*models.ActionExecution, error)

	// RetentionSweep soft-deletes terminal rows started before cutoff.
	RetentionSweep(ctx context.Context, cutoff time.Time) (int64, error)
}

type DefinitionQuery struct {
	ActionType models.ActionType
	Keyword    string
	Assigned   *bool
	IsEnabled  *bool
	Limit      int
	Offset     int
}

type DefinitionPage struct {
	Items  []*models.ActionDefinition `json:"items"`
	Total  int64                      `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

type ExecutionQuery struct {
	ActionDefinitionID int64
	Status             models.ExecutionStatus
	TriggerSourceType  models.TriggerType
	TriggerSourceID    int64
	RetryOf            string
	Since              *time.Time
	ExcludeTests       bool
	Limit              int
	Offset             int
}

type ExecutionPage struct {
	Items  []*models.ActionExecution `json:"items"`
	Total  int64                     `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

// NormalizePage clamps paging values to [1, MaxPageSize] and a non-negative offset.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
