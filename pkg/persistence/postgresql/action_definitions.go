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
	"github.com/lib/pq"
)

const definitionColumns = `
	d.id
  , d.action_name
  , d.action_type
  , d.description
  , d.config_json
  , d.is_enabled
  , d.is_valid
  , d.created_by
  , d.modified_by
  , d.created_at
  , d.modified_at`

// ActionDefinitionRepository handles action_definitions.
type ActionDefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func scanDefinition(row rowScanner) (*models.ActionDefinition, error) {
	var (
		d          models.ActionDefinition
		createdBy  sql.NullInt64
		modifiedBy sql.NullInt64
	)

	err := row.Scan(
		&d.ID, &d.ActionName, &d.ActionType, &d.Description, &d.ConfigJSON,
		&d.IsEnabled, &d.IsValid, &createdBy, &modifiedBy, &d.CreatedAt, &d.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	d.CreatedBy = int64Ptr(createdBy)
	d.ModifiedBy = int64Ptr(modifiedBy)

	return &d, nil
}

func (r *ActionDefinitionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.ActionDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewDefinitionError(op, 0, err)
	}

	defer sqlbase.CloseRows(ctx, r.logger, rows)

	definitions := make([]*models.ActionDefinition, 0)

	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, persistence.NewDefinitionError(op, 0, fmt.Errorf("failed to scan action definition: %w", err))
		}

		definitions = append(definitions, d)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewDefinitionError(op, 0, fmt.Errorf("error iterating action definitions: %w", err))
	}

	return definitions, nil
}

func (r *ActionDefinitionRepository) GetByID(ctx context.Context, id int64) (*models.ActionDefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM action_definitions d WHERE d.id = $1 AND d.is_valid`

	d, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrActionDefinitionNotFound)
	}

	if err != nil {
		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	return d, nil
}

func (r *ActionDefinitionRepository) GetByType(ctx context.Context, actionType models.ActionType) ([]*models.ActionDefinition, error) {
	return r.query(ctx, "GetByType",
		`SELECT`+definitionColumns+` FROM action_definitions d WHERE d.is_valid AND d.action_type = $1 ORDER BY d.id`,
		actionType)
}

func (r *ActionDefinitionRepository) GetAllEnabled(ctx context.Context) ([]*models.ActionDefinition, error) {
	return r.query(ctx, "GetAllEnabled",
		`SELECT`+definitionColumns+` FROM action_definitions d WHERE d.is_valid AND d.is_enabled ORDER BY d.id`)
}

func (r *ActionDefinitionRepository) Search(ctx context.Context, q persistence.DefinitionQuery) (*persistence.DefinitionPage, error) {
	var where sqlbase.Where

	where.Add("d.is_valid")

	if q.ActionType != "" {
		where.Add("d.action_type = ?", q.ActionType)
	}

	if q.Keyword != "" {
		pattern := "%" + q.Keyword + "%"
		where.Add("(d.action_name ILIKE ? OR d.description ILIKE ?)", pattern, pattern)
	}

	if q.Assigned != nil {
		assigned := `EXISTS (SELECT 1 FROM action_trigger_mappings m WHERE m.action_definition_id = d.id AND m.is_valid)`
		if !*q.Assigned {
			assigned = "NOT " + assigned
		}

		where.Add(assigned)
	}

	if q.IsEnabled != nil {
		where.Add("d.is_enabled = ?", *q.IsEnabled)
	}

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_definitions d`+where.SQL(), where.Args()...).Scan(&total)
	if err != nil {
		return nil, persistence.NewDefinitionError("Search", 0, fmt.Errorf("failed to count action definitions: %w", err))
	}

	limit, offset := persistence.NormalizePage(q.Limit, q.Offset)

	query := `SELECT` + definitionColumns + ` FROM action_definitions d` + where.SQL() +
		` ORDER BY d.action_name, d.id LIMIT ` + where.Next(limit) + ` OFFSET ` + where.Next(offset)

	items, err := r.query(ctx, "Search", query, where.Args()...)
	if err != nil {
		return nil, err
	}

	return &persistence.DefinitionPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (r *ActionDefinitionRepository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM action_definitions WHERE is_valid AND action_name = $1 AND id <> $2)`,
		name, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, persistence.NewDefinitionError("NameExists", excludeID, err)
	}

	return exists, nil
}

func definitionWriteError(op string, id int64, err error) error {
	switch pqCode(err) {
	case uniqueViolation:
		return persistence.NewDefinitionError(op, id, persistence.ErrDuplicateActionName)
	default:
		return persistence.NewDefinitionError(op, id, err)
	}
}

func (r *ActionDefinitionRepository) Create(ctx context.Context, d *models.ActionDefinition) error {
	query := `
		INSERT INTO action_definitions (action_name, action_type, description, config_json, is_enabled, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, modified_at
	`

	err := r.db.QueryRowContext(ctx, query,
		d.ActionName, d.ActionType, d.Description, d.ConfigJSON, d.IsEnabled, nullInt64(d.CreatedBy),
	).Scan(&d.ID, &d.CreatedAt, &d.ModifiedAt)
	if err != nil {
		return definitionWriteError("Create", 0, err)
	}

	d.IsValid = true
	d.ModifiedBy = d.CreatedBy

	return nil
}

func (r *ActionDefinitionRepository) Update(ctx context.Context, d *models.ActionDefinition) error {
	query := `
		UPDATE action_definitions d
		SET action_name = $2
		  , action_type = $3
		  , description = $4
		  , config_json = $5
		  , is_enabled = $6
		  , modified_by = $7
		  , modified_at = NOW()
		WHERE d.id = $1 AND d.is_valid
		RETURNING` + definitionColumns

	updated, err := scanDefinition(r.db.QueryRowContext(ctx, query,
		d.ID, d.ActionName, d.ActionType, d.Description, d.ConfigJSON, d.IsEnabled, nullInt64(d.ModifiedBy),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewDefinitionError("Update", d.ID, persistence.ErrActionDefinitionNotFound)
	}

	if err != nil {
		return definitionWriteError("Update", d.ID, err)
	}

	*d = *updated

	return nil
}

func (r *ActionDefinitionRepository) SoftDelete(ctx context.Context, id int64, userID *int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE action_definitions SET is_valid = false, modified_by = $2, modified_at = NOW() WHERE id = $1 AND is_valid`,
		id, nullInt64(userID),
	)
	if err != nil {
		return persistence.NewDefinitionError("SoftDelete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDefinitionError("SoftDelete", id, err)
	}

	if affected == 0 {
		return persistence.NewDefinitionError("SoftDelete", id, persistence.ErrActionDefinitionNotFound)
	}

	return nil
}

func (r *ActionDefinitionRepository) SetEnabled(ctx context.Context, ids []int64, enabled bool, userID *int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE action_definitions SET is_enabled = $2, modified_by = $3, modified_at = NOW() WHERE id = ANY($1) AND is_valid`,
		pq.Array(ids), enabled, nullInt64(userID),
	)
	if err != nil {
		return 0, persistence.NewDefinitionError("SetEnabled", 0, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewDefinitionError("SetEnabled", 0, err)
	}

	return affected, nil
}
