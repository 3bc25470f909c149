package services

import (
	"context"
	"testing"

	"github.com/dukex/actiond/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mappingIDs(mappings []*models.ActionTriggerMapping) []int64 {
	ids := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.ID)
	}

	return ids
}

func TestTriggerMapping_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)

	mapping, err := env.mappings.Create(ctx, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeTask,
		TriggerSourceID:    7,
		TriggerEvent:       " Done ",
		StageID:            models.ExactScope(3),
		ExecutionOrder:     2,
	})
	require.NoError(t, err)
	assert.NotZero(t, mapping.ID)
	assert.Equal(t, "Done", mapping.TriggerEvent)
	assert.True(t, mapping.IsEnabled)
	assert.True(t, mapping.WorkflowID.IsAny())

	id, bound := mapping.StageID.ID()
	assert.True(t, bound)
	assert.Equal(t, int64(3), id)

	listed, err := env.mappings.ListByDefinition(ctx, definition.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{mapping.ID}, mappingIDs(listed))

	_, err = env.mappings.ListByDefinition(ctx, 999)
	assert.ErrorIs(t, err, ErrActionDefinitionNotFound)
}

func TestTriggerMapping_CreateRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	env.mapStageCompleted(t, definition.ID, 1, models.AnyScope())

	tests := []struct {
		name       string
		req        SaveMappingRequest
		validation bool
		conflict   bool
	}{
		{
			name:       "unknown definition",
			req:        SaveMappingRequest{ActionDefinitionID: 999, TriggerType: models.TriggerTypeStage, TriggerSourceID: 100, TriggerEvent: "Completed"},
			validation: true,
		},
		{
			name:       "unknown trigger type",
			req:        SaveMappingRequest{ActionDefinitionID: definition.ID, TriggerType: "Planet", TriggerSourceID: 100, TriggerEvent: "Completed"},
			validation: true,
		},
		{
			name:       "missing event",
			req:        SaveMappingRequest{ActionDefinitionID: definition.ID, TriggerType: models.TriggerTypeStage, TriggerSourceID: 100},
			validation: true,
		},
		{
			name:     "same wiring twice",
			req:      SaveMappingRequest{ActionDefinitionID: definition.ID, TriggerType: models.TriggerTypeStage, TriggerSourceID: 100, TriggerEvent: "Started"},
			conflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.mappings.Create(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.validation, IsValidationError(err))
			assert.Equal(t, tt.conflict, IsConflictError(err))
		})
	}

	// a different workflow scope is a different wiring
	_, err := env.mappings.Create(ctx, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		WorkflowID:         models.ExactScope(42),
	})
	require.NoError(t, err)
}

func TestTriggerMapping_UpdateDeleteStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	mapping := env.mapStageCompleted(t, definition.ID, 1, models.AnyScope())

	updated, err := env.mappings.Update(ctx, mapping.ID, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		WorkflowID:         models.ExactScope(7),
		ExecutionOrder:     5,
		UserID:             int64Ptr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.ExecutionOrder)
	assert.False(t, updated.WorkflowID.IsAny())

	disabled, err := env.mappings.SetStatus(ctx, mapping.ID, false, nil)
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled)

	require.NoError(t, env.mappings.Delete(ctx, mapping.ID, nil))

	_, err = env.mappings.Get(ctx, mapping.ID)
	assert.ErrorIs(t, err, ErrTriggerMappingNotFound)

	_, err = env.mappings.Update(ctx, mapping.ID, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
	})
	assert.ErrorIs(t, err, ErrTriggerMappingNotFound)

	// the key is free again once the row is soft-deleted
	env.mapStageCompleted(t, definition.ID, 1, models.ExactScope(7))
}

func TestGetMappingsForTrigger_ScopeMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)
	other := env.createDefinition(t, "other", models.ActionTypeHTTPAPI, `{}`)

	wildcard := env.mapStageCompleted(t, definition.ID, 2, models.AnyScope())
	scoped := env.mapStageCompleted(t, definition.ID, 1, models.ExactScope(42))
	elsewhere := env.mapStageCompleted(t, other.ID, 0, models.ExactScope(7))

	tests := []struct {
		name     string
		workflow models.Scope
		want     []int64
	}{
		{"unscoped event only sees wildcards", models.AnyScope(), []int64{wildcard.ID}},
		{"scoped event sees wildcard and its own scope", models.ExactScope(42), []int64{scoped.ID, wildcard.ID}},
		{"other workflow", models.ExactScope(7), []int64{elsewhere.ID, wildcard.ID}},
		{"unmapped workflow", models.ExactScope(8), []int64{wildcard.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.mappings.GetMappingsForTrigger(ctx, models.TriggerEvent{
				SourceType: models.TriggerTypeStage,
				SourceID:   100,
				EventType:  "Completed",
				WorkflowID: tt.workflow,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, mappingIDs(got))
		})
	}
}

func TestGetMappingsForTrigger_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{}`)

	stage := env.mapStageCompleted(t, definition.ID, 1, models.AnyScope())

	task, err := env.mappings.Create(ctx, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeTask,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		StageID:            models.ExactScope(5),
		ExecutionOrder:     1,
	})
	require.NoError(t, err)

	disabled, err := env.mappings.Create(ctx, SaveMappingRequest{
		ActionDefinitionID: definition.ID,
		TriggerType:        models.TriggerTypeQuestion,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		IsEnabled:          boolPtr(false),
	})
	require.NoError(t, err)
	require.False(t, disabled.IsEnabled)

	// without a source type every type matches; ties break on id
	got, err := env.mappings.GetMappingsForTrigger(ctx, models.TriggerEvent{
		SourceID: 100, EventType: "Completed", StageID: models.ExactScope(5),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{stage.ID, task.ID}, mappingIDs(got))

	got, err = env.mappings.GetMappingsForTrigger(ctx, models.TriggerEvent{
		SourceType: models.TriggerTypeTask, SourceID: 100, EventType: "Completed", StageID: models.ExactScope(5),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, mappingIDs(got))

	got, err = env.mappings.GetMappingsForTrigger(ctx, models.TriggerEvent{
		SourceID: 100, EventType: "Started",
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = env.mappings.GetMappingsForTrigger(ctx, models.TriggerEvent{EventType: "Completed"})
	assert.True(t, IsValidationError(err))
}
