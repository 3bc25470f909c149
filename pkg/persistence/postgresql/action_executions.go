package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/persistence/sqlbase"
)

const executionColumns = `
	e.id
  , e.execution_id
  , e.action_definition_id
  , e.action_name
  , e.action_type
  , e.trigger_source_type
  , e.trigger_source_id
  , e.trigger_event
  , e.context_data
  , e.executed_by
  , e.status
  , e.started_at
  , e.completed_at
  , e.duration_ms
  , e.result
  , e.error_message
  , e.retry_count
  , e.retry_of
  , e.is_test
  , e.is_valid
  , e.created_at`

// ActionExecutionRepository handles the action_executions ledger.
type ActionExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func scanExecution(row rowScanner) (*models.ActionExecution, error) {
	var (
		e           models.ActionExecution
		contextData []byte
		result      []byte
		executedBy  sql.NullInt64
		completedAt sql.NullTime
		retryOf     sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.ExecutionID, &e.ActionDefinitionID, &e.ActionName, &e.ActionType,
		&e.TriggerSourceType, &e.TriggerSourceID, &e.TriggerEvent, &contextData, &executedBy,
		&e.Status, &e.StartedAt, &completedAt, &e.DurationMs, &result, &e.ErrorMessage,
		&e.RetryCount, &retryOf, &e.IsTest, &e.IsValid, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ContextData = contextData
	e.Result = result
	e.ExecutedBy = int64Ptr(executedBy)
	e.RetryOf = retryOf.String

	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}

	return &e, nil
}

func (r *ActionExecutionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.ActionExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", err)
	}

	defer sqlbase.CloseRows(ctx, r.logger, rows)

	executions := make([]*models.ActionExecution, 0)

	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError(op, "", fmt.Errorf("failed to scan action execution: %w", err))
		}

		executions = append(executions, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", fmt.Errorf("error iterating action executions: %w", err))
	}

	return executions, nil
}

func (r *ActionExecutionRepository) Create(ctx context.Context, e *models.ActionExecution) error {
	if e.ExecutionID == "" {
		return persistence.NewExecutionError("Create", "", errors.New("execution id is required"))
	}

	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO action_executions (
			execution_id, action_definition_id, action_name, action_type,
			trigger_source_type, trigger_source_id, trigger_event, context_data, executed_by,
			status, started_at, retry_count, retry_of, is_test
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.ExecutionID, e.ActionDefinitionID, e.ActionName, e.ActionType,
		e.TriggerSourceType, e.TriggerSourceID, e.TriggerEvent, nullJSON(e.ContextData), nullInt64(e.ExecutedBy),
		e.Status, e.StartedAt, e.RetryCount, nullString(e.RetryOf), e.IsTest,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return persistence.NewExecutionError("Create", e.ExecutionID, persistence.ErrActionDefinitionNotFound)
		}

		return persistence.NewExecutionError("Create", e.ExecutionID, err)
	}

	e.IsValid = true

	return nil
}

// Finalize only touches rows still in a non-terminal state, so concurrent
// writers race on the row lock and exactly one UPDATE matches.
func (r *ActionExecutionRepository) Finalize(ctx context.Context, executionID string, outcome models.ExecutionOutcome) (*models.ActionExecution, error) {
	if !outcome.Status.IsTerminal() {
		return nil, persistence.NewExecutionError("Finalize", executionID, fmt.Errorf("status %s is not terminal", outcome.Status))
	}

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	query := `
		UPDATE action_executions e
		SET status = $2
		  , completed_at = $3
		  , duration_ms = $4
		  , result = $5
		  , error_message = $6
		WHERE e.execution_id = $1 AND e.is_valid AND e.status IN ('Pending', 'Running')
		RETURNING` + executionColumns

	e, err := scanExecution(r.db.QueryRowContext(ctx, query,
		executionID, outcome.Status, completedAt, outcome.DurationMs, nullJSON(outcome.Result), outcome.ErrorMessage,
	))
	if err == nil {
		return e, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("Finalize", executionID, err)
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM action_executions WHERE execution_id = $1 AND is_valid)`, executionID,
	).Scan(&exists)
	if err != nil {
		return nil, persistence.NewExecutionError("Finalize", executionID, err)
	}

	if !exists {
		return nil, persistence.NewExecutionError("Finalize", executionID, persistence.ErrExecutionNotFound)
	}

	return nil, persistence.NewExecutionError("Finalize", executionID, persistence.ErrExecutionAlreadyFinalized)
}

func (r *ActionExecutionRepository) GetByExecutionID(ctx context.Context, executionID string) (*models.ActionExecution, error) {
	query := `SELECT` + executionColumns + ` FROM action_executions e WHERE e.execution_id = $1 AND e.is_valid`

	e, err := scanExecution(r.db.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByExecutionID", executionID, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByExecutionID", executionID, err)
	}

	return e, nil
}

func (r *ActionExecutionRepository) List(ctx context.Context, q persistence.ExecutionQuery) (*persistence.ExecutionPage, error) {
	var where sqlbase.Where

	where.Add("e.is_valid")

	if q.ActionDefinitionID != 0 {
		where.Add("e.action_definition_id = ?", q.ActionDefinitionID)
	}

	if q.Status != "" {
		where.Add("e.status = ?", q.Status)
	}

	if q.TriggerSourceType != "" {
		where.Add("e.trigger_source_type = ?", q.TriggerSourceType)
	}

	if q.TriggerSourceID != 0 {
		where.Add("e.trigger_source_id = ?", q.TriggerSourceID)
	}

	if q.RetryOf != "" {
		where.Add("e.retry_of = ?", q.RetryOf)
	}

	if q.Since != nil {
		where.Add("e.started_at >= ?", *q.Since)
	}

	if q.ExcludeTests {
		where.Add("NOT e.is_test")
	}

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_executions e`+where.SQL(), where.Args()...).Scan(&total)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", fmt.Errorf("failed to count action executions: %w", err))
	}

	limit, offset := persistence.NormalizePage(q.Limit, q.Offset)

	query := `SELECT` + executionColumns + ` FROM action_executions e` + where.SQL() +
		` ORDER BY e.started_at DESC, e.id DESC LIMIT ` + where.Next(limit) + ` OFFSET ` + where.Next(offset)

	items, err := r.query(ctx, "List", query, where.Args()...)
	if err != nil {
		return nil, err
	}

	return &persistence.ExecutionPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (r *ActionExecutionRepository) Stats(ctx context.Context, since time.Time) (*models.ExecutionStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			status
		  , COUNT(*)
		  , COALESCE(SUM(duration_ms) FILTER (WHERE completed_at IS NOT NULL), 0)
		  , COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM action_executions
		WHERE is_valid AND NOT is_test AND started_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return nil, persistence.NewExecutionError("Stats", "", err)
	}

	defer sqlbase.CloseRows(ctx, r.logger, rows)

	stats := &models.ExecutionStats{Since: since, ByStatus: map[models.ExecutionStatus]int64{}}

	var totalDuration, completed int64

	for rows.Next() {
		var (
			status             models.ExecutionStatus
			count, sum, closed int64
		)

		err := rows.Scan(&status, &count, &sum, &closed)
		if err != nil {
			return nil, persistence.NewExecutionError("Stats", "", err)
		}

		stats.ByStatus[status] = count
		stats.Total += count
		totalDuration += sum
		completed += closed
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewExecutionError("Stats", "", err)
	}

	if completed > 0 {
		stats.AverageDurationMs = float64(totalDuration) / float64(completed)
	}

	return stats, nil
}

func (r *ActionExecutionRepository) RetryCandidates(ctx context.Context, maxRetry int, staleBefore time.Time, limit int) ([]*models.ActionExecution, error) {
	var where sqlbase.Where

	where.Add("e.is_valid")
	where.Add("NOT e.is_test")
	where.Add(`NOT EXISTS (SELECT 1 FROM action_executions r WHERE r.is_valid AND r.retry_of = e.execution_id)`)
	where.Add(`EXISTS (SELECT 1 FROM action_definitions d
		WHERE d.id = e.action_definition_id AND d.is_valid AND d.is_enabled)`)
	where.Add("e.retry_count < ?", maxRetry)

	if staleBefore.IsZero() {
		where.Add("e.status = 'Failed'")
	} else {
		where.Add("(e.status = 'Failed' OR (e.status = 'Running' AND e.started_at < ?))", staleBefore)
	}

	limit, _ = persistence.NormalizePage(limit, 0)

	query := `SELECT` + executionColumns + ` FROM action_executions e` + where.SQL() +
		` ORDER BY e.started_at, e.id LIMIT ` + where.Next(limit)

	return r.query(ctx, "RetryCandidates", query, where.Args()...)
}

func (r *ActionExecutionRepository) RetentionSweep(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE action_executions SET is_valid = false
		WHERE is_valid AND status IN ('Success', 'Failed', 'Cancelled') AND started_at < $1
	`, cutoff)
	if err != nil {
		return 0, persistence.NewExecutionError("RetentionSweep", "", err)
	}

	swept, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewExecutionError("RetentionSweep", "", err)
	}

	return swept, nil
}
