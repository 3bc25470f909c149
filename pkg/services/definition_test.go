package services

import (
	"context"
	"testing"

	"github.com/dukex/actiond/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionDefinition_Create(t *testing.T) {
	env := newTestEnv(t)

	definition, err := env.definitions.Create(context.Background(), SaveDefinitionRequest{
		ActionName:  "  Notify CRM  ",
		ActionType:  models.ActionTypeHTTPAPI,
		Description: "post stage completion",
		ConfigJSON:  `{"url":"https://crm.example.com"}`,
		UserID:      int64Ptr(9),
	})
	require.NoError(t, err)

	assert.NotZero(t, definition.ID)
	assert.Equal(t, "Notify CRM", definition.ActionName)
	assert.True(t, definition.IsEnabled)
	assert.True(t, definition.IsValid)
	assert.Equal(t, int64(9), *definition.CreatedBy)
	assert.False(t, definition.CreatedAt.IsZero())

	stored, err := env.definitions.Get(context.Background(), definition.ID)
	require.NoError(t, err)
	assert.Equal(t, definition.ActionName, stored.ActionName)
}

func TestActionDefinition_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  SaveDefinitionRequest
	}{
		{"missing name", SaveDefinitionRequest{ActionType: models.ActionTypeHTTPAPI, ConfigJSON: "{}"}},
		{"blank name", SaveDefinitionRequest{ActionName: "   ", ActionType: models.ActionTypeHTTPAPI, ConfigJSON: "{}"}},
		{"missing type", SaveDefinitionRequest{ActionName: "x", ConfigJSON: "{}"}},
		{"missing config", SaveDefinitionRequest{ActionName: "x", ActionType: models.ActionTypeHTTPAPI}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.definitions.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestActionDefinition_UnregisteredTypeIsAccepted(t *testing.T) {
	env := newTestEnv(t)

	definition := env.createDefinition(t, "custom", "Carrier pigeon", `{}`)
	assert.Equal(t, models.ActionType("Carrier pigeon"), definition.ActionType)
}

func TestActionDefinition_NameUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createDefinition(t, "Send welcome", models.ActionTypeSendEmail, `{"templateId":"welcome"}`)

	_, err := env.definitions.Create(ctx, SaveDefinitionRequest{
		ActionName: "Send welcome",
		ActionType: models.ActionTypeHTTPAPI,
		ConfigJSON: `{}`,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateActionName)
	assert.True(t, IsConflictError(err))

	// case-sensitive
	env.createDefinition(t, "send welcome", models.ActionTypeHTTPAPI, `{}`)

	require.NoError(t, env.definitions.Delete(ctx, first.ID, int64Ptr(1)))

	again := env.createDefinition(t, "Send welcome", models.ActionTypeHTTPAPI, `{}`)
	assert.NotEqual(t, first.ID, again.ID)

	exists, err := env.definitions.NameExists(ctx, "Send welcome", again.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = env.definitions.NameExists(ctx, "Send welcome", 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestActionDefinition_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	definition := env.createDefinition(t, "hook", models.ActionTypeHTTPAPI, `{"url":"a"}`)
	other := env.createDefinition(t, "other", models.ActionTypeHTTPAPI, `{}`)

	updated, err := env.definitions.Update(ctx, definition.ID, SaveDefinitionRequest{
		ActionName: "hook v2",
		ActionType: models.ActionTypeHTTPAPI,
		ConfigJSON: `{"url":"b"}`,
		IsEnabled:  boolPtr(false),
		UserID:     int64Ptr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "hook v2", updated.ActionName)
	assert.JSONEq(t, `{"url":"b"}`, updated.ConfigJSON)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, int64(3), *updated.ModifiedBy)

	// renaming to itself is not a collision
	_, err = env.definitions.Update(ctx, definition.ID, SaveDefinitionRequest{
		ActionName: "hook v2",
		ActionType: models.ActionTypeHTTPAPI,
		ConfigJSON: `{"url":"b"}`,
	})
	require.NoError(t, err)

	_, err = env.definitions.Update(ctx, definition.ID, SaveDefinitionRequest{
		ActionName: other.ActionName,
		ActionType: models.ActionTypeHTTPAPI,
		ConfigJSON: `{}`,
	})
	assert.ErrorIs(t, err, ErrDuplicateActionName)

	_, err = env.definitions.Update(ctx, 999, SaveDefinitionRequest{
		ActionName: "ghost",
		ActionType: models.ActionTypeHTTPAPI,
		ConfigJSON: `{}`,
	})
	assert.ErrorIs(t, err, ErrActionDefinitionNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestActionDefinition_Status(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createDefinition(t, "a", models.ActionTypeHTTPAPI, `{}`)
	b := env.createDefinition(t, "b", models.ActionTypeHTTPAPI, `{}`)
	c := env.createDefinition(t, "c", models.ActionTypeHTTPAPI, `{}`)

	disabled, err := env.definitions.SetStatus(ctx, a.ID, false, int64Ptr(2))
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled)

	_, err = env.definitions.SetStatus(ctx, 999, false, nil)
	assert.ErrorIs(t, err, ErrActionDefinitionNotFound)

	updated, err := env.definitions.BatchSetStatus(ctx, []int64{b.ID, c.ID, 999}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	enabled, err := env.definitions.GetAllEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	_, err = env.definitions.BatchSetStatus(ctx, nil, true, nil)
	assert.True(t, IsValidationError(err))

	updated, err = env.definitions.BatchSetStatus(ctx, []int64{a.ID, b.ID, c.ID}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	enabled, err = env.definitions.GetAllEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 3)
}

func TestActionDefinition_SearchAndByType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hook := env.createDefinition(t, "CRM hook", models.ActionTypeHTTPAPI, `{}`)
	env.createDefinition(t, "Welcome mail", models.ActionTypeSendEmail, `{"templateId":"w"}`)
	env.createDefinition(t, "Audit hook", models.ActionTypeHTTPAPI, `{}`)
	env.mapStageCompleted(t, hook.ID, 1, models.AnyScope())

	byType, err := env.definitions.GetByType(ctx, models.ActionTypeHTTPAPI)
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	page, err := env.definitions.Search(ctx, SearchDefinitionsRequest{Keyword: "hook"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 20, page.Limit)

	page, err = env.definitions.Search(ctx, SearchDefinitionsRequest{Assigned: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, hook.ID, page.Items[0].ID)

	page, err = env.definitions.Search(ctx, SearchDefinitionsRequest{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Equal(t, int64(3), page.Total)
}
