// Package mocks provides testify mocks for the persistence and event bus
// interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence. The
// repositories are plain fields so tests can set expectations on each.
type MockPersistence struct {
	mock.Mock

	Definitions *MockActionDefinitionRepository
	Mappings    *MockTriggerMappingRepository
	Executions  *MockActionExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Definitions: &MockActionDefinitionRepository{},
		Mappings:    &MockTriggerMappingRepository{},
		Executions:  &MockActionExecutionRepository{},
	}
}

func (m *MockPersistence) ActionDefinitions() persistence.ActionDefinitionRepository {
	return m.Definitions
}

func (m *MockPersistence) TriggerMappings() persistence.TriggerMappingRepository {
	return m.Mappings
}

func (m *MockPersistence) ActionExecutions() persistence.ActionExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockActionDefinitionRepository is a mock implementation of persistence.ActionDefinitionRepository.
type MockActionDefinitionRepository struct {
	mock.Mock
}

func (m *MockActionDefinitionRepository) GetByID(ctx context.Context, id int64) (*models.ActionDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionDefinition), args.Error(1)
}

func (m *MockActionDefinitionRepository) GetByType(ctx context.Context, actionType models.ActionType) ([]*models.ActionDefinition, error) {
	args := m.Called(ctx, actionType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionDefinition), args.Error(1)
}

func (m *MockActionDefinitionRepository) GetAllEnabled(ctx context.Context) ([]*models.ActionDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionDefinition), args.Error(1)
}

func (m *MockActionDefinitionRepository) Search(ctx context.Context, query persistence.DefinitionQuery) (*persistence.DefinitionPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.DefinitionPage), args.Error(1)
}

func (m *MockActionDefinitionRepository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	args := m.Called(ctx, name, excludeID)

	return args.Bool(0), args.Error(1)
}

func (m *MockActionDefinitionRepository) Create(ctx context.Context, definition *models.ActionDefinition) error {
	args := m.Called(ctx, definition)

	return args.Error(0)
}

func (m *MockActionDefinitionRepository) Update(ctx context.Context, definition *models.ActionDefinition) error {
	args := m.Called(ctx, definition)

	return args.Error(0)
}

func (m *MockActionDefinitionRepository) SoftDelete(ctx context.Context, id int64, userID *int64) error {
	args := m.Called(ctx, id, userID)

	return args.Error(0)
}

func (m *MockActionDefinitionRepository) SetEnabled(ctx context.Context, ids []int64, enabled bool, userID *int64) (int64, error) {
	args := m.Called(ctx, ids, enabled, userID)

	return args.Get(0).(int64), args.Error(1)
}

// MockTriggerMappingRepository is a mock implementation of persistence.TriggerMappingRepository.
type MockTriggerMappingRepository struct {
	mock.Mock
}

func (m *MockTriggerMappingRepository) GetByID(ctx context.Context, id int64) (*models.ActionTriggerMapping, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionTriggerMapping), args.Error(1)
}

func (m *MockTriggerMappingRepository) ListByDefinition(ctx context.Context, definitionID int64) ([]*models.ActionTriggerMapping, error) {
	args := m.Called(ctx, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionTriggerMapping), args.Error(1)
}

func (m *MockTriggerMappingRepository) Candidates(ctx context.Context, sourceID int64, event string) ([]*models.ActionTriggerMapping, error) {
	args := m.Called(ctx, sourceID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionTriggerMapping), args.Error(1)
}

func (m *MockTriggerMappingRepository) Exists(
	ctx context.Context,
	definitionID int64,
	triggerType models.TriggerType,
	sourceID int64,
	workflowID models.Scope,
	excludeID int64,
) (bool, error) {
	args := m.Called(ctx, definitionID, triggerType, sourceID, workflowID, excludeID)

	return args.Bool(0), args.Error(1)
}

func (m *MockTriggerMappingRepository) Create(ctx context.Context, mapping *models.ActionTriggerMapping) error {
	args := m.Called(ctx, mapping)

	return args.Error(0)
}

func (m *MockTriggerMappingRepository) Update(ctx context.Context, mapping *models.ActionTriggerMapping) error {
	args := m.Called(ctx, mapping)

	return args.Error(0)
}

func (m *MockTriggerMappingRepository) SoftDelete(ctx context.Context, id int64, userID *int64) error {
	args := m.Called(ctx, id, userID)

	return args.Error(0)
}

func (m *MockTriggerMappingRepository) SetEnabled(ctx context.Context, id int64, enabled bool, userID *int64) error {
	args := m.Called(ctx, id, enabled, userID)

	return args.Error(0)
}

// MockActionExecutionRepository is a mock implementation of persistence.ActionExecutionRepository.
type MockActionExecutionRepository struct {
	mock.Mock
}

func (m *MockActionExecutionRepository) Create(ctx context.Context, execution *models.ActionExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockActionExecutionRepository) Finalize(
	ctx context.Context,
	executionID string,
	outcome models.ExecutionOutcome,
) (*models.ActionExecution, error) {
	args := m.Called(ctx, executionID, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionExecution), args.Error(1)
}

func (m *MockActionExecutionRepository) GetByExecutionID(ctx context.Context, executionID string) (*models.ActionExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionExecution), args.Error(1)
}

func (m *MockActionExecutionRepository) List(ctx context.Context, query persistence.ExecutionQuery) (*persistence.ExecutionPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionPage), args.Error(1)
}

func (m *MockActionExecutionRepository) Stats(ctx context.Context, since time.Time) (*models.ExecutionStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionStats), args.Error(1)
}

func (m *MockActionExecutionRepository) RetryCandidates(
	ctx context.Context,
	maxRetry int,
	staleBefore time.Time,
	limit int,
) ([]*models.ActionExecution, error) {
	args := m.Called(ctx, maxRetry, staleBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionExecution), args.Error(1)
}

func (m *MockActionExecutionRepository) RetentionSweep(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}
