package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// ActionDefinition manages the reusable action definitions.
type ActionDefinition struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewActionDefinition creates a new action definition service.
func NewActionDefinition(persistence persistence.Persistence, logger *slog.Logger) *ActionDefinition {
	return &ActionDefinition{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "action_definition_service"),
	}
}

// SaveDefinitionRequest is the body of both create and update. IsEnabled
// defaults to true on create and to the stored value on update.
type SaveDefinitionRequest struct {
	ActionName  string            `json:"action_name"  validate:"required,max=200"`
	ActionType  models.ActionType `json:"action_type"  validate:"required,max=50"`
	Description string            `json:"description"  validate:"max=1000"`
	ConfigJSON  string            `json:"config_json"  validate:"required"`
	IsEnabled   *bool             `json:"is_enabled,omitempty"`
	UserID      *int64            `json:"-"`
}

// SearchDefinitionsRequest filters the definition list.
type SearchDefinitionsRequest struct {
	ActionType models.ActionType `query:"action_type"`
	Keyword    string            `query:"keyword"     validate:"max=200"`
	Assigned   *bool             `query:"assigned"`
	IsEnabled  *bool             `query:"is_enabled"`
	Limit      int               `query:"limit"`
	Offset     int               `query:"offset"`
}

func (s *ActionDefinition) validateRequest(op string, req any) error {
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(op, "validation_failed", err.Error(), err)
	}

	return nil
}

// Get returns a valid definition.
func (s *ActionDefinition) Get(ctx context.Context, id int64) (*models.ActionDefinition, error) {
	definition, err := s.persistence.ActionDefinitions().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get action definition: %w", err)
	}

	return definition, nil
}

func (s *ActionDefinition) GetByType(ctx context.Context, actionType models.ActionType) ([]*models.ActionDefinition, error) {
	definitions, err := s.persistence.ActionDefinitions().GetByType(ctx, actionType)
	if err != nil {
		return nil, fmt.Errorf("failed to list action definitions by type: %w", err)
	}

	return definitions, nil
}

func (s *ActionDefinition) GetAllEnabled(ctx context.Context) ([]*models.ActionDefinition, error) {
	definitions, err := s.persistence.ActionDefinitions().GetAllEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled action definitions: %w", err)
	}

	return definitions, nil
}

// NameExists reports whether another valid definition already uses name.
func (s *ActionDefinition) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	exists, err := s.persistence.ActionDefinitions().NameExists(ctx, strings.TrimSpace(name), excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check action name: %w", err)
	}

	return exists, nil
}

func (s *ActionDefinition) Search(ctx context.Context, req SearchDefinitionsRequest) (*persistence.DefinitionPage, error) {
	if err := s.validateRequest("Search", req); err != nil {
		return nil, err
	}

	limit, offset := persistence.NormalizePage(req.Limit, req.Offset)

	page, err := s.persistence.ActionDefinitions().Search(ctx, persistence.DefinitionQuery{
		ActionType: req.ActionType,
		Keyword:    strings.TrimSpace(req.Keyword),
		Assigned:   req.Assigned,
		IsEnabled:  req.IsEnabled,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search action definitions: %w", err)
	}

	return page, nil
}

// Create stores a new definition. The action type is not checked against the
// executor registry; an unknown type fails at execution time instead.
func (s *ActionDefinition) Create(ctx context.Context, req SaveDefinitionRequest) (*models.ActionDefinition, error) {
	req.ActionName = strings.TrimSpace(req.ActionName)

	if err := s.validateRequest("Create", req); err != nil {
		return nil, err
	}

	if err := s.ensureUniqueName(ctx, "Create", req.ActionName, 0); err != nil {
		return nil, err
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	definition := &models.ActionDefinition{
		ActionName:  req.ActionName,
		ActionType:  req.ActionType,
		Description: req.Description,
		ConfigJSON:  req.ConfigJSON,
		IsEnabled:   enabled,
		CreatedBy:   req.UserID,
	}

	if err := s.persistence.ActionDefinitions().Create(ctx, definition); err != nil {
		return nil, s.mapWriteError("Create", req.ActionName, err)
	}

	s.logger.InfoContext(ctx, "Action definition created",
		"action_definition_id", definition.ID,
		"action_name", definition.ActionName,
		"action_type", definition.ActionType)

	return definition, nil
}

// Update replaces the editable fields of a valid definition.
func (s *ActionDefinition) Update(ctx context.Context, id int64, req SaveDefinitionRequest) (*models.ActionDefinition, error) {
	req.ActionName = strings.TrimSpace(req.ActionName)

	if err := s.validateRequest("Update", req); err != nil {
		return nil, err
	}

	definition, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUniqueName(ctx, "Update", req.ActionName, id); err != nil {
		return nil, err
	}

	definition.ActionName = req.ActionName
	definition.ActionType = req.ActionType
	definition.Description = req.Description
	definition.ConfigJSON = req.ConfigJSON
	definition.ModifiedBy = req.UserID

	if req.IsEnabled != nil {
		definition.IsEnabled = *req.IsEnabled
	}

	if err := s.persistence.ActionDefinitions().Update(ctx, definition); err != nil {
		return nil, s.mapWriteError("Update", req.ActionName, err)
	}

	s.logger.InfoContext(ctx, "Action definition updated", "action_definition_id", id)

	return definition, nil
}

// Delete soft-deletes the definition. Its mappings and execution history are
// kept; a soft-deleted definition never dispatches again.
func (s *ActionDefinition) Delete(ctx context.Context, id int64, userID *int64) error {
	if err := s.persistence.ActionDefinitions().SoftDelete(ctx, id, userID); err != nil {
		return fmt.Errorf("failed to delete action definition: %w", err)
	}

	s.logger.InfoContext(ctx, "Action definition deleted", "action_definition_id", id)

	return nil
}

// SetStatus enables or disables one definition.
func (s *ActionDefinition) SetStatus(ctx context.Context, id int64, enabled bool, userID *int64) (*models.ActionDefinition, error) {
	updated, err := s.persistence.ActionDefinitions().SetEnabled(ctx, []int64{id}, enabled, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to set action definition status: %w", err)
	}

	if updated == 0 {
		return nil, persistence.NewDefinitionError("SetStatus", id, persistence.ErrActionDefinitionNotFound)
	}

	return s.Get(ctx, id)
}

// BatchSetStatus enables or disables several definitions and returns how many
// valid rows were changed. Unknown ids are ignored.
func (s *ActionDefinition) BatchSetStatus(ctx context.Context, ids []int64, enabled bool, userID *int64) (int64, error) {
	if len(ids) == 0 {
		return 0, NewValidationError("BatchSetStatus", "empty_ids", "at least one id is required", nil)
	}

	updated, err := s.persistence.ActionDefinitions().SetEnabled(ctx, ids, enabled, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to set action definition status: %w", err)
	}

	s.logger.InfoContext(ctx, "Action definitions status changed",
		"requested", len(ids), "updated", updated, "enabled", enabled)

	return updated, nil
}

func (s *ActionDefinition) ensureUniqueName(ctx context.Context, op, name string, excludeID int64) error {
	exists, err := s.NameExists(ctx, name, excludeID)
	if err != nil {
		return err
	}

	if exists {
		return newConflictError(op, "duplicate_action_name",
			fmt.Sprintf("action name '%s' is already in use", name), ErrDuplicateActionName)
	}

	return nil
}

func (s *ActionDefinition) mapWriteError(op, name string, err error) error {
	if errors.Is(err, ErrDuplicateActionName) {
		return newConflictError(op, "duplicate_action_name",
			fmt.Sprintf("action name '%s' is already in use", name), err)
	}

	return fmt.Errorf("failed to %s action definition: %w", strings.ToLower(op), err)
}
