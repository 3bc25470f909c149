package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// TriggerMapping manages the wiring between trigger events and action
// definitions, and resolves which mappings fire for an event.
type TriggerMapping struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewTriggerMapping creates a new trigger mapping service.
func NewTriggerMapping(persistence persistence.Persistence, logger *slog.Logger) *TriggerMapping {
	return &TriggerMapping{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "trigger_mapping_service"),
	}
}

// SaveMappingRequest is the body of both create and update.
type SaveMappingRequest struct {
	ActionDefinitionID int64              `json:"action_definition_id" validate:"required,gt=0"`
	TriggerType        models.TriggerType `json:"trigger_type"         validate:"required,oneof=Stage Task Question Workflow Integration"`
	TriggerSourceID    int64              `json:"trigger_source_id"    validate:"required"`
	TriggerEvent       string             `json:"trigger_event"        validate:"required,max=100"`
	WorkflowID         models.Scope       `json:"workflow_id"`
	StageID            models.Scope       `json:"stage_id"`
	ExecutionOrder     int                `json:"execution_order"      validate:"min=0"`
	Description        string             `json:"description"          validate:"max=1000"`
	IsEnabled          *bool              `json:"is_enabled,omitempty"`
	UserID             *int64             `json:"-"`
}

func (s *TriggerMapping) Get(ctx context.Context, id int64) (*models.ActionTriggerMapping, error) {
	mapping, err := s.persistence.TriggerMappings().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger mapping: %w", err)
	}

	return mapping, nil
}

// ListByDefinition returns the valid mappings of a definition, enabled or not.
func (s *TriggerMapping) ListByDefinition(ctx context.Context, definitionID int64) ([]*models.ActionTriggerMapping, error) {
	if _, err := s.persistence.ActionDefinitions().GetByID(ctx, definitionID); err != nil {
		return nil, fmt.Errorf("failed to list trigger mappings: %w", err)
	}

	mappings, err := s.persistence.TriggerMappings().ListByDefinition(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger mappings: %w", err)
	}

	return mappings, nil
}

func (s *TriggerMapping) Create(ctx context.Context, req SaveMappingRequest) (*models.ActionTriggerMapping, error) {
	req.TriggerEvent = strings.TrimSpace(req.TriggerEvent)

	if err := s.check(ctx, "Create", req, 0); err != nil {
		return nil, err
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	mapping := &models.ActionTriggerMapping{
		ActionDefinitionID: req.ActionDefinitionID,
		TriggerType:        req.TriggerType,
		TriggerSourceID:    req.TriggerSourceID,
		TriggerEvent:       req.TriggerEvent,
		WorkflowID:         req.WorkflowID,
		StageID:            req.StageID,
		ExecutionOrder:     req.ExecutionOrder,
		Description:        req.Description,
		IsEnabled:          enabled,
		CreatedBy:          req.UserID,
	}

	if err := s.persistence.TriggerMappings().Create(ctx, mapping); err != nil {
		return nil, mapMappingWriteError("Create", err)
	}

	s.logger.InfoContext(ctx, "Trigger mapping created",
		"trigger_mapping_id", mapping.ID,
		"action_definition_id", mapping.ActionDefinitionID,
		"trigger_type", mapping.TriggerType,
		"trigger_source_id", mapping.TriggerSourceID,
		"trigger_event", mapping.TriggerEvent,
		"workflow_id", mapping.WorkflowID.String())

	return mapping, nil
}

func (s *TriggerMapping) Update(ctx context.Context, id int64, req SaveMappingRequest) (*models.ActionTriggerMapping, error) {
	req.TriggerEvent = strings.TrimSpace(req.TriggerEvent)

	mapping, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.check(ctx, "Update", req, id); err != nil {
		return nil, err
	}

	mapping.ActionDefinitionID = req.ActionDefinitionID
	mapping.TriggerType = req.TriggerType
	mapping.TriggerSourceID = req.TriggerSourceID
	mapping.TriggerEvent = req.TriggerEvent
	mapping.WorkflowID = req.WorkflowID
	mapping.StageID = req.StageID
	mapping.ExecutionOrder = req.ExecutionOrder
	mapping.Description = req.Description
	mapping.ModifiedBy = req.UserID

	if req.IsEnabled != nil {
		mapping.IsEnabled = *req.IsEnabled
	}

	if err := s.persistence.TriggerMappings().Update(ctx, mapping); err != nil {
		return nil, mapMappingWriteError("Update", err)
	}

	s.logger.InfoContext(ctx, "Trigger mapping updated", "trigger_mapping_id", id)

	return mapping, nil
}

func (s *TriggerMapping) Delete(ctx context.Context, id int64, userID *int64) error {
	if err := s.persistence.TriggerMappings().SoftDelete(ctx, id, userID); err != nil {
		return fmt.Errorf("failed to delete trigger mapping: %w", err)
	}

	s.logger.InfoContext(ctx, "Trigger mapping deleted", "trigger_mapping_id", id)

	return nil
}

func (s *TriggerMapping) SetStatus(ctx context.Context, id int64, enabled bool, userID *int64) (*models.ActionTriggerMapping, error) {
	if err := s.persistence.TriggerMappings().SetEnabled(ctx, id, enabled, userID); err != nil {
		return nil, fmt.Errorf("failed to set trigger mapping status: %w", err)
	}

	return s.Get(ctx, id)
}

// GetMappingsForTrigger returns the enabled mappings that fire for event,
// ordered by ExecutionOrder and then by id. The source type is only compared
// when the event carries one; a scoped mapping only fires for an event bound
// to the same workflow or stage.
func (s *TriggerMapping) GetMappingsForTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.ActionTriggerMapping, error) {
	if err := s.validate.Struct(event); err != nil {
		return nil, NewValidationError("GetMappingsForTrigger", "invalid_trigger", err.Error(), err)
	}

	candidates, err := s.persistence.TriggerMappings().Candidates(ctx, event.SourceID, event.EventType)
	if err != nil {
		return nil, fmt.Errorf("failed to load trigger mappings: %w", err)
	}

	matched := make([]*models.ActionTriggerMapping, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.Matches(event) {
			matched = append(matched, candidate)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ExecutionOrder != matched[j].ExecutionOrder {
			return matched[i].ExecutionOrder < matched[j].ExecutionOrder
		}

		return matched[i].ID < matched[j].ID
	})

	return matched, nil
}

func (s *TriggerMapping) check(ctx context.Context, op string, req SaveMappingRequest, excludeID int64) error {
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(op, "validation_failed", err.Error(), err)
	}

	if _, err := s.persistence.ActionDefinitions().GetByID(ctx, req.ActionDefinitionID); err != nil {
		if errors.Is(err, ErrActionDefinitionNotFound) {
			return NewValidationError(op, "unknown_action_definition",
				fmt.Sprintf("action definition %d does not exist", req.ActionDefinitionID), err)
		}

		return fmt.Errorf("failed to load action definition: %w", err)
	}

	exists, err := s.persistence.TriggerMappings().Exists(ctx, req.ActionDefinitionID, req.TriggerType,
		req.TriggerSourceID, req.WorkflowID, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check trigger mapping: %w", err)
	}

	if exists {
		return newConflictError(op, "duplicate_trigger_mapping",
			"the action is already wired to this trigger in the same workflow scope", ErrDuplicateTriggerMapping)
	}

	return nil
}

func mapMappingWriteError(op string, err error) error {
	if errors.Is(err, ErrDuplicateTriggerMapping) {
		return newConflictError(op, "duplicate_trigger_mapping",
			"the action is already wired to this trigger in the same workflow scope", err)
	}

	if errors.Is(err, ErrActionDefinitionNotFound) {
		return NewValidationError(op, "unknown_action_definition", "action definition does not exist", err)
	}

	return fmt.Errorf("failed to %s trigger mapping: %w", strings.ToLower(op), err)
}
