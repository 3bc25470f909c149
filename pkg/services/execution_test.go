package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/events"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageEvent(workflow models.Scope) *models.TriggerEvent {
	return &models.TriggerEvent{
		SourceType:  models.TriggerTypeStage,
		SourceID:    100,
		EventType:   "Completed",
		WorkflowID:  workflow,
		ContextData: map[string]any{"email": "ada@example.com"},
		UserID:      int64Ptr(5),
	}
}

func TestExecuteAction_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{"url":"https://example.com"}`)

	execution, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{
		DefinitionID: definition.ID,
		Trigger:      stageEvent(models.ExactScope(7)),
		UserID:       int64Ptr(5),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.NotEmpty(t, execution.ExecutionID)
	assert.Equal(t, definition.ActionName, execution.ActionName)
	assert.Equal(t, models.ActionTypeHTTPAPI, execution.ActionType)
	assert.Equal(t, models.TriggerTypeStage, execution.TriggerSourceType)
	assert.Equal(t, int64(100), execution.TriggerSourceID)
	assert.Equal(t, "Completed", execution.TriggerEvent)
	assert.Equal(t, int64(5), *execution.ExecutedBy)
	assert.NotNil(t, execution.CompletedAt)
	assert.GreaterOrEqual(t, execution.DurationMs, int64(0))
	assert.Empty(t, execution.ErrorMessage)
	assert.JSONEq(t, `{"email":"ada@example.com"}`, string(execution.ContextData))

	var result map[string]any
	require.NoError(t, json.Unmarshal(execution.Result, &result))
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, float64(100), result["source_id"])

	rows := env.ledger(t)
	require.Len(t, rows, 1)
	assert.Equal(t, execution.ExecutionID, rows[0].ExecutionID)

	published := env.publisher.Events()
	require.Len(t, published, 1)

	finished, ok := published[0].(events.ActionExecutionFinished)
	require.True(t, ok)
	assert.Equal(t, execution.ExecutionID, finished.ExecutionID)
	assert.Equal(t, models.ExecutionStatusSuccess, finished.Status)
}

func TestExecuteAction_FailuresBecomeRows(t *testing.T) {
	tests := []struct {
		name       string
		actionType models.ActionType
		config     string
		wantError  string
	}{
		{"executor error", models.ActionTypeHTTPAPI, `{"fail":true}`, "remote returned 500"},
		{"executor panic", models.ActionTypeHTTPAPI, `{"panic":true}`, "executor panicked"},
		{"unsupported type", models.ActionTypeScript, `{}`, "unsupported action type"},
		{"invalid config", models.ActionTypeSendEmail, `{"recipients":[]}`, "invalid SendEmail configuration"},
		{"malformed config", models.ActionTypeSendEmail, `{"templateId":`, "invalid SendEmail configuration"},
		{"timeout", models.ActionTypeHTTPAPI, `{"block":true}`, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, withExecutorTimeout(50*time.Millisecond))

			definition := env.createDefinition(t, tt.name, tt.actionType, tt.config)

			execution, err := env.executions.ExecuteAction(context.Background(), ExecuteActionRequest{
				DefinitionID: definition.ID,
				Trigger:      stageEvent(models.AnyScope()),
			})
			require.NoError(t, err)

			assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
			assert.Contains(t, execution.ErrorMessage, tt.wantError)
			assert.NotNil(t, execution.CompletedAt)
			assert.Empty(t, execution.Result)
			assert.Len(t, env.ledger(t), 1)
		})
	}
}

func TestExecuteAction_MissingOrDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: 999})
	assert.ErrorIs(t, err, ErrActionDefinitionNotFound)

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	_, err = env.definitions.SetStatus(ctx, definition.ID, false, nil)
	require.NoError(t, err)

	_, err = env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: definition.ID})
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.True(t, IsConflictError(err))

	assert.Empty(t, env.ledger(t))
	assert.Empty(t, env.recorder.Calls())
}

func TestTestExecute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	_, err := env.definitions.SetStatus(ctx, definition.ID, false, nil)
	require.NoError(t, err)

	execution, err := env.executions.TestExecute(ctx, definition.ID, map[string]any{"probe": true}, int64Ptr(2))
	require.NoError(t, err)

	assert.True(t, execution.IsTest)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Empty(t, execution.TriggerEvent)

	stats, err := env.executions.Statistics(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestFinalizeIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{"fail":true}`)

	execution, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: definition.ID})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, execution.Status)

	_, err = env.persistence.ActionExecutions().Finalize(ctx, execution.ExecutionID, models.ExecutionOutcome{
		Status: models.ExecutionStatusSuccess,
	})
	assert.ErrorIs(t, err, ErrExecutionAlreadyFinalized)

	_, err = env.executions.Cancel(ctx, execution.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionAlreadyFinalized)

	stored, err := env.executions.GetExecution(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, execution.ErrorMessage, stored.ErrorMessage)
}

func seedRunning(t *testing.T, env *testEnv, definition *models.ActionDefinition, startedAt time.Time) *models.ActionExecution {
	t.Helper()

	execution := &models.ActionExecution{
		ExecutionID:        "running-" + definition.ActionName,
		ActionDefinitionID: definition.ID,
		ActionName:         definition.ActionName,
		ActionType:         definition.ActionType,
		TriggerSourceType:  models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		ContextData:        json.RawMessage(`{"email":"ada@example.com"}`),
		Status:             models.ExecutionStatusRunning,
		StartedAt:          startedAt,
	}
	require.NoError(t, env.persistence.ActionExecutions().Create(context.Background(), execution))

	return execution
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	running := seedRunning(t, env, definition, time.Now().Add(-time.Minute))

	cancelled, err := env.executions.Cancel(ctx, running.ExecutionID, int64Ptr(8))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled by user 8", cancelled.ErrorMessage)
	assert.GreaterOrEqual(t, cancelled.DurationMs, int64(time.Minute/time.Millisecond))

	_, err = env.executions.Cancel(ctx, running.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionAlreadyFinalized)

	_, err = env.executions.Cancel(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestRetry(t *testing.T) {
	env := newTestEnv(t, withMaxRetry(2))
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{"fail":true}`)

	first, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{
		DefinitionID: definition.ID,
		Trigger:      stageEvent(models.AnyScope()),
		UserID:       int64Ptr(5),
	})
	require.NoError(t, err)

	second, err := env.executions.Retry(ctx, first.ExecutionID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
	assert.Equal(t, first.ExecutionID, second.RetryOf)
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, int64(5), *second.ExecutedBy)
	assert.Equal(t, "Completed", second.TriggerEvent)
	assert.JSONEq(t, string(first.ContextData), string(second.ContextData))

	third, err := env.executions.Retry(ctx, second.ExecutionID, int64Ptr(6))
	require.NoError(t, err)
	assert.Equal(t, 2, third.RetryCount)
	assert.Equal(t, int64(6), *third.ExecutedBy)

	_, err = env.executions.Retry(ctx, third.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrRetryLimitReached)

	// each row starts at most one retry
	_, err = env.executions.Retry(ctx, first.ExecutionID, nil)
	require.ErrorIs(t, err, ErrExecutionNotRetryable)
	assert.True(t, IsConflictError(err))

	// the source rows stay as they were
	stored, err := env.executions.GetExecution(ctx, first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Len(t, env.ledger(t), 3)
}

func TestRetry_RefusesNonFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)

	succeeded, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: definition.ID})
	require.NoError(t, err)

	_, err = env.executions.Retry(ctx, succeeded.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionNotRetryable)

	// StaleAfter is off, so a Running row is never retried
	running := seedRunning(t, env, definition, time.Now().Add(-time.Hour))

	_, err = env.executions.Retry(ctx, running.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionNotRetryable)

	_, err = env.executions.Retry(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestRetry_StaleRunning(t *testing.T) {
	env := newTestEnv(t, withStaleAfter(10*time.Minute))
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)

	stale := seedRunning(t, env, definition, time.Now().Add(-time.Hour))
	fresh := seedRunning(t, env, env.createDefinition(t, "fresh", models.ActionTypeHTTPAPI, `{}`), time.Now())

	candidates, err := env.executions.RetryCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, stale.ExecutionID, candidates[0].ExecutionID)

	_, err = env.executions.Retry(ctx, fresh.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionNotRetryable)

	retried, err := env.executions.Retry(ctx, stale.ExecutionID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, retried.Status)
	assert.Equal(t, stale.ExecutionID, retried.RetryOf)

	stored, err := env.executions.GetExecution(ctx, stale.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stored.Status)

	_, err = env.executions.Retry(ctx, stale.ExecutionID, nil)
	assert.ErrorIs(t, err, ErrExecutionNotRetryable)

	candidates, err = env.executions.RetryCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestHistoryQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok := env.createDefinition(t, "ok", models.ActionTypeHTTPAPI, `{}`)
	bad := env.createDefinition(t, "bad", models.ActionTypeHTTPAPI, `{"fail":true}`)

	for range 3 {
		_, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: ok.ID, Trigger: stageEvent(models.AnyScope())})
		require.NoError(t, err)
	}

	failed, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: bad.ID, Trigger: stageEvent(models.AnyScope())})
	require.NoError(t, err)

	_, err = env.executions.TestExecute(ctx, bad.ID, nil, nil)
	require.NoError(t, err)

	stats, err := env.executions.Statistics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.ByStatus[models.ExecutionStatusSuccess])
	assert.Equal(t, int64(1), stats.ByStatus[models.ExecutionStatusFailed])
	assert.InDelta(t, 0.75, stats.SuccessRate(), 0.001)

	_, err = env.executions.Statistics(ctx, 1000)
	assert.True(t, IsValidationError(err))

	page, err := env.executions.ListExecutions(ctx, ListExecutionsRequest{ActionDefinitionID: bad.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = env.executions.ListExecutions(ctx, ListExecutionsRequest{
		Status:       models.ExecutionStatusFailed,
		ExcludeTests: true,
		Days:         1,
		Limit:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, failed.ExecutionID, page.Items[0].ExecutionID)

	_, err = env.executions.ListExecutions(ctx, ListExecutionsRequest{Status: "Exploded"})
	assert.True(t, IsValidationError(err))

	retryable, err := env.executions.GetFailedExecutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, failed.ExecutionID, retryable[0].ExecutionID)
}

func TestRetentionSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)

	_, err := env.executions.ExecuteAction(ctx, ExecuteActionRequest{DefinitionID: definition.ID})
	require.NoError(t, err)

	seedRunning(t, env, definition, time.Now().Add(-48*time.Hour))

	_, err = env.executions.RetentionSweep(ctx, 0)
	assert.True(t, IsValidationError(err))

	// fresh terminal rows and Running rows survive
	swept, err := env.executions.RetentionSweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, swept)

	swept, err = env.executions.RetentionSweep(ctx, -time.Hour)
	assert.True(t, IsValidationError(err))
	assert.Zero(t, swept)

	page, err := env.persistence.ActionExecutions().List(ctx, persistence.ExecutionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}
