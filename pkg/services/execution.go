package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/events"
	"github.com/dukex/actiond/pkg/metrics"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/otelhelper"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultExecutorTimeout = 60 * time.Second
	DefaultMaxRetryCount   = 3
	DefaultStatisticsDays  = 7
	maxStatisticsDays      = 365
)

// Executors is the part of the registry the execution service needs.
type Executors interface {
	CreateExecutor(actionType models.ActionType) (protocol.ActionExecutor, error)
	ValidateConfig(actionType models.ActionType, configJSON string) error
}

// ExecutionConfig tunes the execution service. Zero values take the defaults.
type ExecutionConfig struct {
	// ExecutorTimeout bounds a single executor call.
	ExecutorTimeout time.Duration

	// MaxRetryCount is how many retries a failed execution chain may have.
	MaxRetryCount int

	// StaleAfter lets Retry pick up rows left Running for longer than this.
	// Zero disables retrying Running rows.
	StaleAfter time.Duration

	// Publisher receives an ActionExecutionFinished event per finalized row.
	Publisher eventbus.EventPublisher

	Tracer trace.Tracer
}

// ActionExecution runs action definitions and keeps the execution ledger.
// Executor, configuration and type errors are recorded as Failed rows and
// never returned to the caller.
type ActionExecution struct {
	persistence persistence.Persistence
	executors   Executors
	config      ExecutionConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewActionExecution(
	persistence persistence.Persistence,
	executors Executors,
	logger *slog.Logger,
	config ExecutionConfig,
) *ActionExecution {
	if config.ExecutorTimeout <= 0 {
		config.ExecutorTimeout = DefaultExecutorTimeout
	}

	if config.MaxRetryCount <= 0 {
		config.MaxRetryCount = DefaultMaxRetryCount
	}

	if config.Tracer == nil {
		config.Tracer = otelhelper.NoopTracer()
	}

	return &ActionExecution{
		persistence: persistence,
		executors:   executors,
		config:      config,
		logger:      logger.With("module", "action_execution_service"),
		now:         time.Now,
	}
}

// MaxRetryCount returns the effective retry limit.
func (s *ActionExecution) MaxRetryCount() int {
	return s.config.MaxRetryCount
}

// ExecuteActionRequest describes one attempt. Trigger is nil when the action
// runs outside a trigger (test runs, manual runs). ContextData defaults to the
// trigger's context data.
type ExecuteActionRequest struct {
	DefinitionID  int64
	Trigger       *models.TriggerEvent
	ContextData   map[string]any
	UserID        *int64
	RetryOf       string
	RetryCount    int
	IsTest        bool
	AllowDisabled bool
}

// ExecuteAction runs one definition and returns its finalized ledger row. A
// missing definition returns ErrActionDefinitionNotFound and a disabled one
// ErrActionDisabled; neither writes a row. Every other outcome is a row.
func (s *ActionExecution) ExecuteAction(ctx context.Context, req ExecuteActionRequest) (*models.ActionExecution, error) {
	definition, err := s.persistence.ActionDefinitions().GetByID(ctx, req.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action definition: %w", err)
	}

	if !definition.IsEnabled && !req.AllowDisabled {
		return nil, newConflictError("ExecuteAction", "action_disabled",
			fmt.Sprintf("action definition %d is disabled", definition.ID), ErrActionDisabled)
	}

	contextData := req.ContextData
	if contextData == nil && req.Trigger != nil {
		contextData = req.Trigger.ContextData
	}

	execution := &models.ActionExecution{
		ExecutionID:        uuid.NewString(),
		ActionDefinitionID: definition.ID,
		ActionName:         definition.ActionName,
		ActionType:         definition.ActionType,
		ExecutedBy:         req.UserID,
		Status:             models.ExecutionStatusRunning,
		StartedAt:          s.now().UTC(),
		RetryCount:         req.RetryCount,
		RetryOf:            req.RetryOf,
		IsTest:             req.IsTest,
	}

	if req.Trigger != nil {
		execution.TriggerSourceType = req.Trigger.SourceType
		execution.TriggerSourceID = req.Trigger.SourceID
		execution.TriggerEvent = req.Trigger.EventType
	}

	if len(contextData) > 0 {
		raw, err := json.Marshal(contextData)
		if err != nil {
			return nil, NewValidationError("ExecuteAction", "invalid_context_data", "context data is not JSON serializable", err)
		}

		execution.ContextData = raw
	}

	if err := s.persistence.ActionExecutions().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record action execution: %w", err)
	}

	ctx, span := otelhelper.StartSpan(ctx, s.config.Tracer, "action.execute",
		attribute.String(otelhelper.ExecutionIDKey, execution.ExecutionID),
		attribute.Int64(otelhelper.ActionDefinitionIDKey, definition.ID),
		attribute.String(otelhelper.ActionNameKey, definition.ActionName),
		attribute.String(otelhelper.ActionTypeKey, string(definition.ActionType)),
		attribute.String(otelhelper.TriggerSourceTypeKey, string(execution.TriggerSourceType)),
		attribute.Int64(otelhelper.TriggerSourceIDKey, execution.TriggerSourceID),
		attribute.String(otelhelper.TriggerEventKey, execution.TriggerEvent),
	)
	defer span.End()

	logger := s.logger.With(
		"execution_id", execution.ExecutionID,
		"action_definition_id", definition.ID,
		"action_type", definition.ActionType,
	)

	logger.InfoContext(ctx, "Executing action")

	tc := models.TriggerContext{
		ExecutionID:        execution.ExecutionID,
		ActionDefinitionID: definition.ID,
		ActionName:         definition.ActionName,
		UserID:             req.UserID,
		Data:               contextData,
	}

	if req.Trigger != nil {
		tc.SourceType = req.Trigger.SourceType
		tc.SourceID = req.Trigger.SourceID
		tc.EventType = req.Trigger.EventType
		tc.WorkflowID = req.Trigger.WorkflowID
		tc.StageID = req.Trigger.StageID
	}

	started := s.now()
	result, runErr := s.run(ctx, definition, tc)
	duration := s.now().Sub(started)

	outcome := models.ExecutionOutcome{
		Status:      models.ExecutionStatusSuccess,
		CompletedAt: s.now().UTC(),
		DurationMs:  duration.Milliseconds(),
	}

	if runErr == nil && result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			runErr = fmt.Errorf("failed to encode executor result: %w", err)
		} else {
			outcome.Result = raw
		}
	}

	if runErr != nil {
		outcome.Status = models.ExecutionStatusFailed
		outcome.ErrorMessage = runErr.Error()

		otelhelper.SetError(span, runErr)
		logger.WarnContext(ctx, "Action execution failed", "error", runErr, "duration_ms", outcome.DurationMs)
	} else {
		logger.InfoContext(ctx, "Action execution succeeded", "duration_ms", outcome.DurationMs)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionStatusKey, string(outcome.Status)))

	return s.finalize(ctx, execution, outcome)
}

// run resolves the executor, validates the configuration and invokes it
// under the executor timeout.
func (s *ActionExecution) run(ctx context.Context, definition *models.ActionDefinition, tc models.TriggerContext) (any, error) {
	executor, err := s.executors.CreateExecutor(definition.ActionType)
	if err != nil {
		return nil, err
	}

	if err := s.executors.ValidateConfig(definition.ActionType, definition.ConfigJSON); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ExecutorTimeout)
	defer cancel()

	type response struct {
		result any
		err    error
	}

	done := make(chan response, 1)

	go func() {
		result, err := invoke(ctx, executor, definition.ConfigJSON, tc)
		done <- response{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("action timed out after %s: %w", s.config.ExecutorTimeout, r.err)
		}

		return r.result, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("action timed out after %s", s.config.ExecutorTimeout)
		}

		return nil, fmt.Errorf("action aborted: %w", ctx.Err())
	}
}

func invoke(ctx context.Context, executor protocol.ActionExecutor, configJSON string, tc models.TriggerContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()

	return executor.Execute(ctx, configJSON, tc)
}

// finalize applies the terminal write. A row finalized concurrently (an
// operator cancel) is returned as stored.
func (s *ActionExecution) finalize(ctx context.Context, execution *models.ActionExecution, outcome models.ExecutionOutcome) (*models.ActionExecution, error) {
	// the terminal write must land even when the caller went away
	writeCtx := context.WithoutCancel(ctx)

	finalized, err := s.persistence.ActionExecutions().Finalize(writeCtx, execution.ExecutionID, outcome)
	if err != nil {
		if errors.Is(err, ErrExecutionAlreadyFinalized) {
			s.logger.WarnContext(ctx, "Action execution was finalized concurrently", "execution_id", execution.ExecutionID)

			return s.persistence.ActionExecutions().GetByExecutionID(writeCtx, execution.ExecutionID)
		}

		return nil, fmt.Errorf("failed to finalize action execution: %w", err)
	}

	metrics.RecordExecution(string(finalized.ActionType), string(finalized.Status),
		time.Duration(finalized.DurationMs)*time.Millisecond)

	s.publishFinished(writeCtx, finalized)

	return finalized, nil
}

func (s *ActionExecution) publishFinished(ctx context.Context, execution *models.ActionExecution) {
	if s.config.Publisher == nil {
		return
	}

	event := events.NewActionExecutionFinished(uuid.NewString(), execution)

	if err := s.config.Publisher.Publish(ctx, execution.ExecutionID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish execution finished event",
			"execution_id", execution.ExecutionID, "error", err)
	}
}

// TestExecute runs a definition outside any trigger, even when disabled. The
// row is flagged as a test and excluded from statistics and retries.
func (s *ActionExecution) TestExecute(ctx context.Context, definitionID int64, contextData map[string]any, userID *int64) (*models.ActionExecution, error) {
	return s.ExecuteAction(ctx, ExecuteActionRequest{
		DefinitionID:  definitionID,
		ContextData:   contextData,
		UserID:        userID,
		IsTest:        true,
		AllowDisabled: true,
	})
}

// Retry re-runs the definition of a Failed row (or of a Running row older
// than StaleAfter) under a fresh execution id. The source row is not touched.
func (s *ActionExecution) Retry(ctx context.Context, executionID string, userID *int64) (*models.ActionExecution, error) {
	source, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !s.retryable(source) {
		return nil, newConflictError("Retry", "not_retryable",
			fmt.Sprintf("execution %s is %s", executionID, source.Status), ErrExecutionNotRetryable)
	}

	if source.RetryCount >= s.config.MaxRetryCount {
		return nil, newConflictError("Retry", "retry_limit_reached",
			fmt.Sprintf("execution %s already retried %d times", executionID, source.RetryCount), ErrRetryLimitReached)
	}

	children, err := s.persistence.ActionExecutions().List(ctx, persistence.ExecutionQuery{RetryOf: executionID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up retries of %s: %w", executionID, err)
	}

	if children.Total > 0 {
		return nil, newConflictError("Retry", "already_retried",
			fmt.Sprintf("execution %s was already retried", executionID), ErrExecutionNotRetryable)
	}

	var contextData map[string]any
	if len(source.ContextData) > 0 {
		if err := json.Unmarshal(source.ContextData, &contextData); err != nil {
			return nil, fmt.Errorf("failed to decode stored context data: %w", err)
		}
	}

	var trigger *models.TriggerEvent
	if source.TriggerEvent != "" {
		trigger = &models.TriggerEvent{
			SourceType:  source.TriggerSourceType,
			SourceID:    source.TriggerSourceID,
			EventType:   source.TriggerEvent,
			ContextData: contextData,
			UserID:      source.ExecutedBy,
		}
	}

	if userID == nil {
		userID = source.ExecutedBy
	}

	s.logger.InfoContext(ctx, "Retrying action execution",
		"execution_id", executionID, "retry_count", source.RetryCount+1)

	return s.ExecuteAction(ctx, ExecuteActionRequest{
		DefinitionID: source.ActionDefinitionID,
		Trigger:      trigger,
		ContextData:  contextData,
		UserID:       userID,
		RetryOf:      source.ExecutionID,
		RetryCount:   source.RetryCount + 1,
		IsTest:       source.IsTest,
	})
}

func (s *ActionExecution) retryable(execution *models.ActionExecution) bool {
	switch execution.Status {
	case models.ExecutionStatusFailed:
		return true
	case models.ExecutionStatusRunning:
		return s.config.StaleAfter > 0 && execution.StartedAt.Before(s.now().Add(-s.config.StaleAfter))
	default:
		return false
	}
}

// Cancel aborts a Pending or Running row.
func (s *ActionExecution) Cancel(ctx context.Context, executionID string, userID *int64) (*models.ActionExecution, error) {
	execution, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	message := "cancelled by operator"
	if userID != nil {
		message = fmt.Sprintf("cancelled by user %d", *userID)
	}

	cancelled, err := s.persistence.ActionExecutions().Finalize(ctx, executionID, models.ExecutionOutcome{
		Status:       models.ExecutionStatusCancelled,
		CompletedAt:  now,
		DurationMs:   now.Sub(execution.StartedAt).Milliseconds(),
		ErrorMessage: message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel action execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Action execution cancelled", "execution_id", executionID)

	metrics.RecordExecution(string(cancelled.ActionType), string(cancelled.Status),
		time.Duration(cancelled.DurationMs)*time.Millisecond)
	s.publishFinished(ctx, cancelled)

	return cancelled, nil
}

func (s *ActionExecution) GetExecution(ctx context.Context, executionID string) (*models.ActionExecution, error) {
	execution, err := s.persistence.ActionExecutions().GetByExecutionID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get action execution: %w", err)
	}

	return execution, nil
}

// ListExecutionsRequest filters the execution history.
type ListExecutionsRequest struct {
	ActionDefinitionID int64                  `query:"action_definition_id"`
	Status             models.ExecutionStatus `query:"status"`
	TriggerSourceType  models.TriggerType     `query:"trigger_source_type"`
	TriggerSourceID    int64                  `query:"trigger_source_id"`
	Days               int                    `query:"days"`
	ExcludeTests       bool                   `query:"exclude_tests"`
	Limit              int                    `query:"limit"`
	Offset             int                    `query:"offset"`
}

func (s *ActionExecution) ListExecutions(ctx context.Context, req ListExecutionsRequest) (*persistence.ExecutionPage, error) {
	if req.ActionDefinitionID < 0 || (req.Status != "" && !req.Status.IsValid()) || req.Days < 0 || req.Days > maxStatisticsDays {
		return nil, NewValidationError("ListExecutions", "invalid_filter", "invalid execution filter", nil)
	}

	limit, offset := persistence.NormalizePage(req.Limit, req.Offset)

	query := persistence.ExecutionQuery{
		ActionDefinitionID: req.ActionDefinitionID,
		Status:             req.Status,
		TriggerSourceType:  req.TriggerSourceType,
		TriggerSourceID:    req.TriggerSourceID,
		ExcludeTests:       req.ExcludeTests,
		Limit:              limit,
		Offset:             offset,
	}

	if req.Days > 0 {
		since := s.now().UTC().AddDate(0, 0, -req.Days)
		query.Since = &since
	}

	page, err := s.persistence.ActionExecutions().List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list action executions: %w", err)
	}

	return page, nil
}

// Statistics aggregates the last days of non-test executions.
func (s *ActionExecution) Statistics(ctx context.Context, days int) (*models.ExecutionStats, error) {
	if days <= 0 {
		days = DefaultStatisticsDays
	}

	if days > maxStatisticsDays {
		return nil, NewValidationError("Statistics", "invalid_days",
			fmt.Sprintf("days must be at most %d", maxStatisticsDays), nil)
	}

	stats, err := s.persistence.ActionExecutions().Stats(ctx, s.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("failed to compute execution statistics: %w", err)
	}

	return stats, nil
}

// GetFailedExecutions returns Failed rows that can still be retried, oldest
// first.
func (s *ActionExecution) GetFailedExecutions(ctx context.Context, limit int) ([]*models.ActionExecution, error) {
	limit, _ = persistence.NormalizePage(limit, 0)

	failed, err := s.persistence.ActionExecutions().RetryCandidates(ctx, s.config.MaxRetryCount, time.Time{}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed executions: %w", err)
	}

	return failed, nil
}

// RetryCandidates is GetFailedExecutions plus the Running rows older than
// StaleAfter.
func (s *ActionExecution) RetryCandidates(ctx context.Context, limit int) ([]*models.ActionExecution, error) {
	var staleBefore time.Time
	if s.config.StaleAfter > 0 {
		staleBefore = s.now().Add(-s.config.StaleAfter)
	}

	candidates, err := s.persistence.ActionExecutions().RetryCandidates(ctx, s.config.MaxRetryCount, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retry candidates: %w", err)
	}

	return candidates, nil
}

// RetentionSweep soft-deletes terminal rows started before now-retention.
func (s *ActionExecution) RetentionSweep(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, NewValidationError("RetentionSweep", "invalid_retention", "retention must be positive", nil)
	}

	swept, err := s.persistence.ActionExecutions().RetentionSweep(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep action executions: %w", err)
	}

	return swept, nil
}
