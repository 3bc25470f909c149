// Package persistencetest holds the behaviour every persistence.Persistence
// implementation must share. Implementations call Run from their own tests.
package persistencetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns an empty store for one subtest.
type Opener func(t *testing.T) persistence.Persistence

func Run(t *testing.T, open Opener) {
	t.Run("definitions", func(t *testing.T) { testDefinitions(t, open) })
	t.Run("definition search", func(t *testing.T) { testDefinitionSearch(t, open) })
	t.Run("mappings", func(t *testing.T) { testMappings(t, open) })
	t.Run("executions", func(t *testing.T) { testExecutions(t, open) })
	t.Run("concurrent finalize", func(t *testing.T) { testConcurrentFinalize(t, open) })
	t.Run("retry candidates and retention", func(t *testing.T) { testRetryAndRetention(t, open) })
}

func userID(id int64) *int64 {
	return &id
}

func createDefinition(t *testing.T, p persistence.Persistence, overrides ...func(*models.ActionDefinition)) *models.ActionDefinition {
	t.Helper()

	d := testutil.CreateTestDefinition(overrides...)
	require.NoError(t, p.ActionDefinitions().Create(context.Background(), d))

	return d
}

func testDefinitions(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.ActionDefinitions()

	d := testutil.CreateTestDefinition(testutil.WithName("Notify HR"), func(d *models.ActionDefinition) {
		d.CreatedBy = userID(9)
	})
	require.NoError(t, repo.Create(ctx, d))
	assert.NotZero(t, d.ID)
	assert.True(t, d.IsValid)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notify HR", got.ActionName)
	assert.Equal(t, d.ConfigJSON, got.ConfigJSON)
	assert.Equal(t, int64(9), *got.CreatedBy)

	t.Run("name is unique among valid rows and case-sensitive", func(t *testing.T) {
		err := repo.Create(ctx, testutil.CreateTestDefinition(testutil.WithName("Notify HR")))
		assert.ErrorIs(t, err, persistence.ErrDuplicateActionName)

		require.NoError(t, repo.Create(ctx, testutil.CreateTestDefinition(testutil.WithName("notify hr"))))

		exists, err := repo.NameExists(ctx, "Notify HR", 0)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.NameExists(ctx, "Notify HR", d.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("soft-deleted names can be reused", func(t *testing.T) {
		old := createDefinition(t, p, testutil.WithName("Reusable"))
		require.NoError(t, repo.SoftDelete(ctx, old.ID, userID(1)))

		_, err := repo.GetByID(ctx, old.ID)
		assert.ErrorIs(t, err, persistence.ErrActionDefinitionNotFound)

		again := testutil.CreateTestDefinition(testutil.WithName("Reusable"))
		require.NoError(t, repo.Create(ctx, again))
		assert.NotEqual(t, old.ID, again.ID)

		assert.ErrorIs(t, repo.SoftDelete(ctx, old.ID, nil), persistence.ErrActionDefinitionNotFound)
	})

	t.Run("update", func(t *testing.T) {
		other := createDefinition(t, p, testutil.WithName("Other"))

		other.ActionName = "Notify HR"
		assert.ErrorIs(t, repo.Update(ctx, other), persistence.ErrDuplicateActionName)

		other.ActionName = "Renamed"
		other.ActionType = models.ActionTypeScript
		other.ConfigJSON = `{"language":"lua","sourceCode":"return 1"}`
		other.ModifiedBy = userID(4)
		require.NoError(t, repo.Update(ctx, other))

		got, err := repo.GetByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.ActionName)
		assert.Equal(t, models.ActionTypeScript, got.ActionType)
		assert.Equal(t, int64(4), *got.ModifiedBy)

		missing := testutil.CreateTestDefinition()
		missing.ID = 999999
		assert.ErrorIs(t, repo.Update(ctx, missing), persistence.ErrActionDefinitionNotFound)
	})

	t.Run("enable and disable", func(t *testing.T) {
		a := createDefinition(t, p, testutil.WithType("Custom", `{}`))
		b := createDefinition(t, p, testutil.WithType("Custom", `{}`))

		n, err := repo.SetEnabled(ctx, []int64{a.ID, b.ID, 999999}, false, userID(2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		enabled, err := repo.GetAllEnabled(ctx)
		require.NoError(t, err)

		for _, d := range enabled {
			assert.NotEqual(t, a.ID, d.ID)
			assert.NotEqual(t, b.ID, d.ID)
		}

		byType, err := repo.GetByType(ctx, "Custom")
		require.NoError(t, err)
		assert.Len(t, byType, 2)

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsEnabled)
	})
}

func testDefinitionSearch(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.ActionDefinitions()

	welcome := createDefinition(t, p, testutil.WithName("Welcome email"), testutil.WithType(models.ActionTypeSendEmail, `{"templateId":"welcome"}`))
	createDefinition(t, p, testutil.WithName("Sync payroll"), func(d *models.ActionDefinition) { d.Description = "Pushes the employee to payroll" })
	createDefinition(t, p, testutil.WithName("Score answers"), testutil.WithType(models.ActionTypeScript, `{}`), testutil.Disabled())

	require.NoError(t, p.TriggerMappings().Create(ctx, testutil.CreateTestMapping(welcome.ID)))

	tests := []struct {
		name  string
		query persistence.DefinitionQuery
		want  []string
	}{
		{"all", persistence.DefinitionQuery{}, []string{"Score answers", "Sync payroll", "Welcome email"}},
		{"by type", persistence.DefinitionQuery{ActionType: models.ActionTypeSendEmail}, []string{"Welcome email"}},
		{"keyword in description", persistence.DefinitionQuery{Keyword: "PAYROLL"}, []string{"Sync payroll"}},
		{"assigned", persistence.DefinitionQuery{Assigned: boolPtr(true)}, []string{"Welcome email"}},
		{"unassigned", persistence.DefinitionQuery{Assigned: boolPtr(false)}, []string{"Score answers", "Sync payroll"}},
		{"disabled", persistence.DefinitionQuery{IsEnabled: boolPtr(false)}, []string{"Score answers"}},
		{"paged", persistence.DefinitionQuery{Limit: 1, Offset: 1}, []string{"Sync payroll"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.Search(ctx, tt.query)
			require.NoError(t, err)

			names := make([]string, 0, len(result.Items))
			for _, d := range result.Items {
				names = append(names, d.ActionName)
			}

			assert.Equal(t, tt.want, names)
		})
	}

	result, err := repo.Search(ctx, persistence.DefinitionQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, 1, result.Limit)
}

func boolPtr(b bool) *bool {
	return &b
}

func testMappings(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.TriggerMappings()

	d1 := createDefinition(t, p)
	d2 := createDefinition(t, p)

	wildcard := testutil.CreateTestMapping(d1.ID, testutil.WithOrder(2))
	require.NoError(t, repo.Create(ctx, wildcard))
	assert.NotZero(t, wildcard.ID)

	t.Run("duplicate wiring is rejected", func(t *testing.T) {
		err := repo.Create(ctx, testutil.CreateTestMapping(d1.ID, func(m *models.ActionTriggerMapping) { m.TriggerEvent = "Started" }))
		assert.ErrorIs(t, err, persistence.ErrDuplicateTriggerMapping)

		exists, err := repo.Exists(ctx, d1.ID, models.TriggerTypeStage, 100, models.AnyScope(), 0)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.Exists(ctx, d1.ID, models.TriggerTypeStage, 100, models.AnyScope(), wildcard.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	scoped := testutil.CreateTestMapping(d1.ID, testutil.WithWorkflow(42), testutil.WithOrder(1))
	require.NoError(t, repo.Create(ctx, scoped), "a different workflow scope is a different key")

	other := testutil.CreateTestMapping(d2.ID, testutil.WithOrder(2))
	require.NoError(t, repo.Create(ctx, other))

	disabled := testutil.CreateTestMapping(d2.ID, testutil.WithWorkflow(7), func(m *models.ActionTriggerMapping) { m.IsEnabled = false })
	require.NoError(t, repo.Create(ctx, disabled))

	unrelated := testutil.CreateTestMapping(d2.ID, testutil.WithTrigger(models.TriggerTypeTask, 100, "Completed"), testutil.WithStage(3))
	require.NoError(t, repo.Create(ctx, unrelated))

	t.Run("candidates", func(t *testing.T) {
		candidates, err := repo.Candidates(ctx, 100, "Completed")
		require.NoError(t, err)

		// order first, then id; the trigger type is left to the caller
		assert.Equal(t, []int64{scoped.ID, unrelated.ID, wildcard.ID, other.ID}, mappingIDs(candidates))

		got, err := repo.GetByID(ctx, unrelated.ID)
		require.NoError(t, err)
		id, ok := got.StageID.ID()
		assert.True(t, ok)
		assert.Equal(t, int64(3), id)
		assert.True(t, got.WorkflowID.IsAny())

		none, err := repo.Candidates(ctx, 100, "Created")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update and status", func(t *testing.T) {
		other.ExecutionOrder = 5
		other.Description = "later"
		require.NoError(t, repo.Update(ctx, other))

		got, err := repo.GetByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.ExecutionOrder)

		other.ActionDefinitionID = d1.ID
		assert.ErrorIs(t, repo.Update(ctx, other), persistence.ErrDuplicateTriggerMapping)
		other.ActionDefinitionID = d2.ID

		require.NoError(t, repo.SetEnabled(ctx, other.ID, false, userID(3)))

		candidates, err := repo.Candidates(ctx, 100, "Completed")
		require.NoError(t, err)
		assert.NotContains(t, mappingIDs(candidates), other.ID)
	})

	t.Run("soft delete frees the key", func(t *testing.T) {
		require.NoError(t, repo.SoftDelete(ctx, wildcard.ID, nil))

		_, err := repo.GetByID(ctx, wildcard.ID)
		assert.ErrorIs(t, err, persistence.ErrTriggerMappingNotFound)

		require.NoError(t, repo.Create(ctx, testutil.CreateTestMapping(d1.ID)))

		assert.ErrorIs(t, repo.SoftDelete(ctx, wildcard.ID, nil), persistence.ErrTriggerMappingNotFound)
		assert.ErrorIs(t, repo.SetEnabled(ctx, 999999, true, nil), persistence.ErrTriggerMappingNotFound)
	})

	t.Run("list by definition", func(t *testing.T) {
		list, err := repo.ListByDefinition(ctx, d2.ID)
		require.NoError(t, err)
		assert.Len(t, list, 3)

		for i := 1; i < len(list); i++ {
			assert.LessOrEqual(t, list[i-1].ExecutionOrder, list[i].ExecutionOrder)
		}
	})
}

func mappingIDs(mappings []*models.ActionTriggerMapping) []int64 {
	ids := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.ID)
	}

	return ids
}

func newExecution(definition *models.ActionDefinition, startedAt time.Time) *models.ActionExecution {
	return &models.ActionExecution{
		ExecutionID:        uuid.NewString(),
		ActionDefinitionID: definition.ID,
		ActionName:         definition.ActionName,
		ActionType:         definition.ActionType,
		TriggerSourceType:  models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		ContextData:        json.RawMessage(`{"employee":1}`),
		Status:             models.ExecutionStatusRunning,
		StartedAt:          startedAt,
	}
}

func testExecutions(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.ActionExecutions()
	d := createDefinition(t, p)

	now := time.Now().UTC().Truncate(time.Millisecond)

	first := newExecution(d, now.Add(-2*time.Minute))
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)

	assert.Error(t, repo.Create(ctx, &models.ActionExecution{
		ExecutionID:        first.ExecutionID,
		ActionDefinitionID: d.ID,
		Status:             models.ExecutionStatusRunning,
	}), "execution ids are unique")

	finalized, err := repo.Finalize(ctx, first.ExecutionID, models.ExecutionOutcome{
		Status:      models.ExecutionStatusSuccess,
		CompletedAt: now.Add(-time.Minute),
		DurationMs:  120,
		Result:      json.RawMessage(`{"status_code":200}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, finalized.Status)
	require.NotNil(t, finalized.CompletedAt)

	_, err = repo.Finalize(ctx, first.ExecutionID, models.ExecutionOutcome{Status: models.ExecutionStatusFailed, ErrorMessage: "late"})
	assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyFinalized)

	got, err := repo.GetByExecutionID(ctx, first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, int64(120), got.DurationMs)
	assert.JSONEq(t, `{"status_code":200}`, string(got.Result))
	assert.JSONEq(t, `{"employee":1}`, string(got.ContextData))

	_, err = repo.Finalize(ctx, "missing", models.ExecutionOutcome{Status: models.ExecutionStatusFailed})
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = repo.GetByExecutionID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	second := newExecution(d, now.Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, second))
	_, err = repo.Finalize(ctx, second.ExecutionID, models.ExecutionOutcome{
		Status:       models.ExecutionStatusFailed,
		DurationMs:   80,
		ErrorMessage: "HTTP 500: boom",
	})
	require.NoError(t, err)

	test := newExecution(d, now)
	test.IsTest = true
	require.NoError(t, repo.Create(ctx, test))

	t.Run("list", func(t *testing.T) {
		all, err := repo.List(ctx, persistence.ExecutionQuery{ActionDefinitionID: d.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(3), all.Total)
		require.Len(t, all.Items, 3)
		assert.Equal(t, test.ExecutionID, all.Items[0].ExecutionID, "newest first")

		failed, err := repo.List(ctx, persistence.ExecutionQuery{Status: models.ExecutionStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed.Items, 1)
		assert.Equal(t, second.ExecutionID, failed.Items[0].ExecutionID)

		nonTest, err := repo.List(ctx, persistence.ExecutionQuery{ExcludeTests: true, TriggerSourceID: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(2), nonTest.Total)

		since := now.Add(-90 * time.Second)
		recent, err := repo.List(ctx, persistence.ExecutionQuery{Since: &since})
		require.NoError(t, err)
		assert.Equal(t, int64(2), recent.Total)
	})

	t.Run("stats exclude test runs", func(t *testing.T) {
		stats, err := repo.Stats(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
		assert.Equal(t, int64(1), stats.ByStatus[models.ExecutionStatusSuccess])
		assert.Equal(t, int64(1), stats.ByStatus[models.ExecutionStatusFailed])
		assert.InDelta(t, 100.0, stats.AverageDurationMs, 0.001)
		assert.InDelta(t, 0.5, stats.SuccessRate(), 0.001)
	})
}

func testConcurrentFinalize(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.ActionExecutions()
	d := createDefinition(t, p)

	execution := newExecution(d, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, execution))

	const writers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			status := models.ExecutionStatusSuccess
			if i%2 == 0 {
				status = models.ExecutionStatusFailed
			}

			_, err := repo.Finalize(ctx, execution.ExecutionID, models.ExecutionOutcome{Status: status, DurationMs: int64(i)})

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyFinalized) {
				rejected++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, rejected)
}

func testRetryAndRetention(t *testing.T, open Opener) {
	ctx := context.Background()
	p := open(t)
	repo := p.ActionExecutions()
	d := createDefinition(t, p)

	now := time.Now().UTC()

	finish := func(e *models.ActionExecution, status models.ExecutionStatus) {
		t.Helper()
		_, err := repo.Finalize(ctx, e.ExecutionID, models.ExecutionOutcome{Status: status, ErrorMessage: "x"})
		require.NoError(t, err)
	}

	failed := newExecution(d, now.Add(-3*time.Hour))
	require.NoError(t, repo.Create(ctx, failed))
	finish(failed, models.ExecutionStatusFailed)

	exhausted := newExecution(d, now.Add(-3*time.Hour))
	exhausted.RetryCount = 3
	require.NoError(t, repo.Create(ctx, exhausted))
	finish(exhausted, models.ExecutionStatusFailed)

	alreadyRetried := newExecution(d, now.Add(-4*time.Hour))
	require.NoError(t, repo.Create(ctx, alreadyRetried))
	finish(alreadyRetried, models.ExecutionStatusFailed)

	retry := newExecution(d, now.Add(-2*time.Hour))
	retry.RetryOf = alreadyRetried.ExecutionID
	retry.RetryCount = 1
	require.NoError(t, repo.Create(ctx, retry))
	finish(retry, models.ExecutionStatusSuccess)

	stale := newExecution(d, now.Add(-2*time.Hour))
	require.NoError(t, repo.Create(ctx, stale))

	fresh := newExecution(d, now)
	require.NoError(t, repo.Create(ctx, fresh))

	testRun := newExecution(d, now.Add(-5*time.Hour))
	testRun.IsTest = true
	require.NoError(t, repo.Create(ctx, testRun))
	finish(testRun, models.ExecutionStatusFailed)

	staleExhausted := newExecution(d, now.Add(-2*time.Hour))
	staleExhausted.RetryCount = 3
	require.NoError(t, repo.Create(ctx, staleExhausted))

	disabled := createDefinition(t, p, testutil.WithName("Disabled later"))
	_, err := p.ActionDefinitions().SetEnabled(ctx, []int64{disabled.ID}, false, nil)
	require.NoError(t, err)

	deleted := createDefinition(t, p, testutil.WithName("Deleted later"))
	require.NoError(t, p.ActionDefinitions().SoftDelete(ctx, deleted.ID, nil))

	for _, orphan := range []*models.ActionDefinition{disabled, deleted} {
		e := newExecution(orphan, now.Add(-140*time.Minute))
		require.NoError(t, repo.Create(ctx, e))
		finish(e, models.ExecutionStatusFailed)
	}

	children, err := repo.List(ctx, persistence.ExecutionQuery{RetryOf: alreadyRetried.ExecutionID})
	require.NoError(t, err)
	require.Len(t, children.Items, 1)
	assert.Equal(t, retry.ExecutionID, children.Items[0].ExecutionID)

	candidates, err := repo.RetryCandidates(ctx, 3, now.Add(-time.Hour), 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ExecutionID)
	}

	assert.ElementsMatch(t, []string{failed.ExecutionID, stale.ExecutionID}, ids)

	withoutStale, err := repo.RetryCandidates(ctx, 3, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, withoutStale, 1)
	assert.Equal(t, failed.ExecutionID, withoutStale[0].ExecutionID)

	got, err := repo.GetByExecutionID(ctx, stale.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status, "listing candidates never mutates rows")

	swept, err := repo.RetentionSweep(ctx, now.Add(-150*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(4), swept, "terminal rows older than the cutoff")

	_, err = repo.GetByExecutionID(ctx, failed.ExecutionID)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = repo.GetByExecutionID(ctx, stale.ExecutionID)
	assert.NoError(t, err, "running rows are never swept")

	_, err = repo.GetByExecutionID(ctx, retry.ExecutionID)
	assert.NoError(t, err)
}
