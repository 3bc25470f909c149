package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/persistence/sqlbase"
)

const mappingColumns = `
	m.id
  , m.action_definition_id
  , m.trigger_type
  , m.trigger_source_id
  , m.trigger_event
  , m.workflow_id
  , m.stage_id
  , m.execution_order
  , m.description
  , m.is_enabled
  , m.is_valid
  , m.created_by
  , m.modified_by
  , m.created_at
  , m.modified_at`

// TriggerMappingRepository handles action_trigger_mappings.
type TriggerMappingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func scanMapping(row rowScanner) (*models.ActionTriggerMapping, error) {
	var (
		m          models.ActionTriggerMapping
		createdBy  sql.NullInt64
		modifiedBy sql.NullInt64
	)

	err := row.Scan(
		&m.ID, &m.ActionDefinitionID, &m.TriggerType, &m.TriggerSourceID, &m.TriggerEvent,
		&m.WorkflowID, &m.StageID, &m.ExecutionOrder, &m.Description,
		&m.IsEnabled, &m.IsValid, &createdBy, &modifiedBy, &m.CreatedAt, &m.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	m.CreatedBy = int64Ptr(createdBy)
	m.ModifiedBy = int64Ptr(modifiedBy)

	return &m, nil
}

func (r *TriggerMappingRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.ActionTriggerMapping, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewMappingError(op, 0, err)
	}

	defer sqlbase.CloseRows(ctx, r.logger, rows)

	mappings := make([]*models.ActionTriggerMapping, 0)

	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, persistence.NewMappingError(op, 0, fmt.Errorf("failed to scan trigger mapping: %w", err))
		}

		mappings = append(mappings, m)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewMappingError(op, 0, fmt.Errorf("error iterating trigger mappings: %w", err))
	}

	return mappings, nil
}

func (r *TriggerMappingRepository) GetByID(ctx context.Context, id int64) (*models.ActionTriggerMapping, error) {
	query := `SELECT` + mappingColumns + ` FROM action_trigger_mappings m WHERE m.id = $1 AND m.is_valid`

	m, err := scanMapping(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewMappingError("GetByID", id, persistence.ErrTriggerMappingNotFound)
	}

	if err != nil {
		return nil, persistence.NewMappingError("GetByID", id, err)
	}

	return m, nil
}

func (r *TriggerMappingRepository) ListByDefinition(ctx context.Context, definitionID int64) ([]*models.ActionTriggerMapping, error) {
	return r.query(ctx, "ListByDefinition",
		`SELECT`+mappingColumns+` FROM action_trigger_mappings m
		WHERE m.is_valid AND m.action_definition_id = $1
		ORDER BY m.execution_order, m.id`,
		definitionID)
}

func (r *TriggerMappingRepository) Candidates(ctx context.Context, sourceID int64, event string) ([]*models.ActionTriggerMapping, error) {
	return r.query(ctx, "Candidates",
		`SELECT`+mappingColumns+` FROM action_trigger_mappings m
		WHERE m.is_valid AND m.is_enabled AND m.trigger_source_id = $1 AND m.trigger_event = $2
		ORDER BY m.execution_order, m.id`,
		sourceID, event)
}

func (r *TriggerMappingRepository) Exists(ctx context.Context, definitionID int64, triggerType models.TriggerType,
	sourceID int64, workflowID models.Scope, excludeID int64,
) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM action_trigger_mappings
			WHERE is_valid
			  AND action_definition_id = $1
			  AND trigger_type = $2
			  AND trigger_source_id = $3
			  AND workflow_id IS NOT DISTINCT FROM $4
			  AND id <> $5
		)`,
		definitionID, triggerType, sourceID, workflowID, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, persistence.NewMappingError("Exists", excludeID, err)
	}

	return exists, nil
}

func mappingWriteError(op string, id int64, err error) error {
	switch pqCode(err) {
	case uniqueViolation:
		return persistence.NewMappingError(op, id, persistence.ErrDuplicateTriggerMapping)
	case foreignKeyViolation:
		return persistence.NewMappingError(op, id, persistence.ErrActionDefinitionNotFound)
	default:
		return persistence.NewMappingError(op, id, err)
	}
}

func (r *TriggerMappingRepository) Create(ctx context.Context, m *models.ActionTriggerMapping) error {
	query := `
		INSERT INTO action_trigger_mappings (
			action_definition_id, trigger_type, trigger_source_id, trigger_event,
			workflow_id, stage_id, execution_order, description, is_enabled, created_by, modified_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id, created_at, modified_at
	`

	err := r.db.QueryRowContext(ctx, query,
		m.ActionDefinitionID, m.TriggerType, m.TriggerSourceID, m.TriggerEvent,
		m.WorkflowID, m.StageID, m.ExecutionOrder, m.Description, m.IsEnabled, nullInt64(m.CreatedBy),
	).Scan(&m.ID, &m.CreatedAt, &m.ModifiedAt)
	if err != nil {
		return mappingWriteError("Create", 0, err)
	}

	m.IsValid = true
	m.ModifiedBy = m.CreatedBy

	return nil
}

func (r *TriggerMappingRepository) Update(ctx context.Context, m *models.ActionTriggerMapping) error {
	query := `
		UPDATE action_trigger_mappings m
		SET action_definition_id = $2
		  , trigger_type = $3
		  , trigger_source_id = $4
		  , trigger_event = $5
		  , workflow_id = $6
		  , stage_id = $7
		  , execution_order = $8
		  , description = $9
		  , is_enabled = $10
		  , modified_by = $11
		  , modified_at = NOW()
		WHERE m.id = $1 AND m.is_valid
		RETURNING` + mappingColumns

	updated, err := scanMapping(r.db.QueryRowContext(ctx, query,
		m.ID, m.ActionDefinitionID, m.TriggerType, m.TriggerSourceID, m.TriggerEvent,
		m.WorkflowID, m.StageID, m.ExecutionOrder, m.Description, m.IsEnabled, nullInt64(m.ModifiedBy),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewMappingError("Update", m.ID, persistence.ErrTriggerMappingNotFound)
	}

	if err != nil {
		return mappingWriteError("Update", m.ID, err)
	}

	*m = *updated

	return nil
}

func (r *TriggerMappingRepository) exec(ctx context.Context, op string, id int64, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return persistence.NewMappingError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewMappingError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewMappingError(op, id, persistence.ErrTriggerMappingNotFound)
	}

	return nil
}

func (r *TriggerMappingRepository) SoftDelete(ctx context.Context, id int64, userID *int64) error {
	return r.exec(ctx, "SoftDelete", id,
		`UPDATE action_trigger_mappings SET is_valid = false, modified_by = $2, modified_at = NOW() WHERE id = $1 AND is_valid`,
		nullInt64(userID))
}

func (r *TriggerMappingRepository) SetEnabled(ctx context.Context, id int64, enabled bool, userID *int64) error {
	return r.exec(ctx, "SetEnabled", id,
		`UPDATE action_trigger_mappings SET is_enabled = $2, modified_by = $3, modified_at = NOW() WHERE id = $1 AND is_valid`,
		enabled, nullInt64(userID))
}
