package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/events"
	"github.com/dukex/actiond/pkg/mocks"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/persistence/file"
	"github.com/dukex/actiond/pkg/protocol"
	"github.com/dukex/actiond/pkg/registry"
	"github.com/dukex/actiond/pkg/services"
	"github.com/dukex/actiond/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{}

func (stubExecutor) ActionType() models.ActionType { return models.ActionTypeHTTPAPI }

func (stubExecutor) Execute(_ context.Context, configJSON string, tc models.TriggerContext) (any, error) {
	if strings.Contains(configJSON, `"fail":true`) {
		return nil, errors.New("remote returned 500")
	}

	return map[string]any{"ok": true, "context": tc.Data}, nil
}

type stubFactory struct{}

func (stubFactory) ActionType() models.ActionType { return models.ActionTypeHTTPAPI }
func (stubFactory) Name() string                  { return "HTTP API" }
func (stubFactory) Description() string           { return "stub" }

func (stubFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (stubFactory) Create(protocol.Dependencies) (protocol.ActionExecutor, error) {
	return stubExecutor{}, nil
}

type testServer struct {
	app         *fiber.App
	persistence *file.Persistence
	triggers    *services.ActionTrigger
}

type serverOption func(*web.Dependencies)

func withPublisher(p eventbus.EventPublisher) serverOption {
	return func(d *web.Dependencies) { d.Publisher = p }
}

func withHealth(h web.HealthChecker) serverOption {
	return func(d *web.Dependencies) { d.Health = h }
}

func setupTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)

	reg := registry.NewRegistry(logger)
	reg.Register(stubFactory{})

	definitions := services.NewActionDefinition(p, logger)
	mappings := services.NewTriggerMapping(p, logger)
	executions := services.NewActionExecution(p, reg, logger, services.ExecutionConfig{MaxRetryCount: 2})
	triggers := services.NewActionTrigger(mappings, executions, logger, services.TriggerConfig{})

	deps := web.Dependencies{
		Definitions: definitions,
		Mappings:    mappings,
		Executions:  executions,
		Triggers:    triggers,
		Registry:    reg,
		Health:      p,
		Logger:      logger,
	}

	for _, opt := range opts {
		opt(&deps)
	}

	app := fiber.New()
	app.Use(web.MetricsMiddleware())
	web.NewAPIHandlers(deps).RegisterRoutes(app)

	return &testServer{app: app, persistence: p, triggers: triggers}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

func (s *testServer) createDefinition(t *testing.T, name, config string) *models.ActionDefinition {
	t.Helper()

	status, body := s.do(t, http.MethodPost, "/action-definitions", map[string]any{
		"action_name": name,
		"action_type": "HttpApi",
		"config_json": config,
	}, web.UserIDHeader, "42")
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.ActionDefinition](t, body)
}

func (s *testServer) createMapping(t *testing.T, definitionID int64, order int, workflowID any) *models.ActionTriggerMapping {
	t.Helper()

	status, body := s.do(t, http.MethodPost, "/trigger-mappings", map[string]any{
		"action_definition_id": definitionID,
		"trigger_type":         "Stage",
		"trigger_source_id":    100,
		"trigger_event":        "Completed",
		"workflow_id":          workflowID,
		"execution_order":      order,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.ActionTriggerMapping](t, body)
}

func stageCompleted(workflowID int64) map[string]any {
	return map[string]any{
		"trigger_source_type": "Stage",
		"trigger_source_id":   100,
		"trigger_event_type":  "Completed",
		"workflow_id":         workflowID,
		"context_data":        map[string]any{"email": "ana@example.com"},
	}
}

func TestAPIHandlers_CreateDefinition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name: "successful creation",
			requestBody: map[string]any{
				"action_name": "  Notify CRM  ",
				"action_type": "HttpApi",
				"config_json": `{"url":"https://crm.example.com"}`,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			requestBody:    map[string]any{"action_type": "HttpApi", "config_json": "{}"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_failed",
		},
		{
			name:           "missing config",
			requestBody:    map[string]any{"action_name": "x", "action_type": "HttpApi"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_failed",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := setupTestServer(t)

			status, body := server.do(t, http.MethodPost, "/action-definitions", tt.requestBody, web.UserIDHeader, "42")
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedStatus == http.StatusCreated {
				definition := decode[*models.ActionDefinition](t, body)
				assert.NotZero(t, definition.ID)
				assert.Equal(t, "Notify CRM", definition.ActionName)
				assert.True(t, definition.IsEnabled)
				require.NotNil(t, definition.CreatedBy)
				assert.Equal(t, int64(42), *definition.CreatedBy)

				return
			}

			problem := decode[map[string]any](t, body)
			assert.Equal(t, tt.expectedType, problem["type"])
		})
	}
}

func TestAPIHandlers_DefinitionNameConflict(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	server.createDefinition(t, "Notify CRM", "{}")

	status, body := server.do(t, http.MethodPost, "/action-definitions", map[string]any{
		"action_name": "Notify CRM",
		"action_type": "HttpApi",
		"config_json": "{}",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_action_name", decode[map[string]any](t, body)["type"])
}

func TestAPIHandlers_DefinitionLifecycle(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	definition := server.createDefinition(t, "Notify CRM", "{}")
	path := fmt.Sprintf("/action-definitions/%d", definition.ID)

	status, body := server.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Notify CRM", decode[*models.ActionDefinition](t, body).ActionName)

	status, body = server.do(t, http.MethodPut, path, map[string]any{
		"action_name": "Notify CRM v2",
		"action_type": "HttpApi",
		"config_json": `{"url":"https://crm.example.com/v2"}`,
	}, web.UserIDHeader, "7")
	require.Equal(t, http.StatusOK, status, string(body))

	updated := decode[*models.ActionDefinition](t, body)
	assert.Equal(t, "Notify CRM v2", updated.ActionName)
	require.NotNil(t, updated.ModifiedBy)
	assert.Equal(t, int64(7), *updated.ModifiedBy)

	status, body = server.do(t, http.MethodPatch, path+"/status", map[string]any{"is_enabled": false})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.False(t, decode[*models.ActionDefinition](t, body).IsEnabled)

	status, _ = server.do(t, http.MethodPatch, path+"/status", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = server.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "action_definition_not_found", decode[map[string]any](t, body)["type"])

	// the name is free again once the row is soft-deleted
	server.createDefinition(t, "Notify CRM v2", "{}")
}

func TestAPIHandlers_DefinitionBadRequests(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		header []string
	}{
		{"non numeric id", http.MethodGet, "/action-definitions/abc", nil},
		{"zero id", http.MethodGet, "/action-definitions/0", nil},
		{"bad user header", http.MethodDelete, "/action-definitions/1", []string{web.UserIDHeader, "root"}},
		{"bad stats days", http.MethodGet, "/action-executions/stats?days=many", nil},
		{"stats window too large", http.MethodGet, "/action-executions/stats?days=400", nil},
		{"bad resolve scope", http.MethodGet, "/triggers/resolve?trigger_source_id=100&trigger_event_type=Completed&workflow_id=x", nil},
		{"resolve without event", http.MethodGet, "/triggers/resolve?trigger_source_id=100", nil},
		{"unknown execution status", http.MethodGet, "/action-executions?status=Exploded", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := server.do(t, tt.method, tt.path, nil, tt.header...)
			assert.Equal(t, http.StatusBadRequest, status, string(body))
		})
	}
}

func TestAPIHandlers_SearchAndBatchStatus(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)

	a := server.createDefinition(t, "crm-sync", "{}")
	b := server.createDefinition(t, "crm-notify", "{}")
	server.createDefinition(t, "billing", "{}")

	status, body := server.do(t, http.MethodPost, "/action-definitions/batch-status", map[string]any{
		"ids":        []int64{a.ID, b.ID},
		"is_enabled": false,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.EqualValues(t, 2, decode[map[string]any](t, body)["updated"])

	status, body = server.do(t, http.MethodGet, "/action-definitions?keyword=crm&is_enabled=false", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	page := decode[persistence.DefinitionPage](t, body)
	assert.Equal(t, int64(2), page.Total)

	status, _ = server.do(t, http.MethodPost, "/action-definitions/batch-status", map[string]any{
		"ids":        []int64{},
		"is_enabled": true,
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Mappings(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	definition := server.createDefinition(t, "Notify CRM", "{}")
	mapping := server.createMapping(t, definition.ID, 1, nil)

	assert.True(t, mapping.WorkflowID.IsAny())

	// same definition, type, source and workflow scope
	status, body := server.do(t, http.MethodPost, "/trigger-mappings", map[string]any{
		"action_definition_id": definition.ID,
		"trigger_type":         "Stage",
		"trigger_source_id":    100,
		"trigger_event":        "Started",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_trigger_mapping", decode[map[string]any](t, body)["type"])

	status, body = server.do(t, http.MethodPost, "/trigger-mappings", map[string]any{
		"action_definition_id": 999,
		"trigger_type":         "Stage",
		"trigger_source_id":    100,
		"trigger_event":        "Completed",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_action_definition", decode[map[string]any](t, body)["type"])

	status, _ = server.do(t, http.MethodPost, "/trigger-mappings", map[string]any{
		"action_definition_id": definition.ID,
		"trigger_type":         "Planet",
		"trigger_source_id":    100,
		"trigger_event":        "Completed",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	path := fmt.Sprintf("/trigger-mappings/%d", mapping.ID)

	status, body = server.do(t, http.MethodPut, path, map[string]any{
		"action_definition_id": definition.ID,
		"trigger_type":         "Stage",
		"trigger_source_id":    100,
		"trigger_event":        "Completed",
		"workflow_id":          7,
		"execution_order":      3,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	updated := decode[*models.ActionTriggerMapping](t, body)
	assert.Equal(t, models.ExactScope(7), updated.WorkflowID)
	assert.Equal(t, 3, updated.ExecutionOrder)

	status, body = server.do(t, http.MethodPatch, path+"/status", map[string]any{"is_enabled": false})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[*models.ActionTriggerMapping](t, body).IsEnabled)

	status, body = server.do(t, http.MethodGet, fmt.Sprintf("/action-definitions/%d/mappings", definition.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["count"])

	status, _ = server.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = server.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_DispatchAndResolve(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)

	d1 := server.createDefinition(t, "D1", `{"url":"https://example.com"}`)
	failing := server.createDefinition(t, "failing", `{"fail":true}`)
	scoped := server.createDefinition(t, "other-workflow", "{}")

	server.createMapping(t, failing.ID, 2, nil)
	server.createMapping(t, d1.ID, 1, nil)
	server.createMapping(t, scoped.ID, 0, 8)

	status, body := server.do(t, http.MethodGet,
		"/triggers/resolve?trigger_source_type=Stage&trigger_source_id=100&trigger_event_type=Completed&workflow_id=7", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	resolved := decode[web.ResolveResponse](t, body)
	require.Equal(t, 2, resolved.Count)
	assert.Equal(t, d1.ID, resolved.Mappings[0].ActionDefinitionID)
	assert.Equal(t, failing.ID, resolved.Mappings[1].ActionDefinitionID)

	status, body = server.do(t, http.MethodPost, "/triggers/dispatch", stageCompleted(7), web.UserIDHeader, "5")
	require.Equal(t, http.StatusOK, status, string(body))

	summary := decode[services.DispatchSummary](t, body)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, models.ExecutionStatusSuccess, summary.Results[0].Status)
	assert.Equal(t, "remote returned 500", summary.Results[1].Reason)

	status, body = server.do(t, http.MethodGet, "/action-executions/"+summary.Results[0].ExecutionID, nil)
	require.Equal(t, http.StatusOK, status)

	execution := decode[*models.ActionExecution](t, body)
	assert.Equal(t, d1.ID, execution.ActionDefinitionID)
	assert.Equal(t, "Completed", execution.TriggerEvent)
	require.NotNil(t, execution.ExecutedBy)
	assert.Equal(t, int64(5), *execution.ExecutedBy)

	status, _ = server.do(t, http.MethodPost, "/triggers/dispatch", map[string]any{"trigger_source_id": 100})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_FireRunsInBackground(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	definition := server.createDefinition(t, "D1", "{}")
	server.createMapping(t, definition.ID, 1, nil)

	status, body := server.do(t, http.MethodPost, "/triggers/fire", stageCompleted(7))
	require.Equal(t, http.StatusAccepted, status, string(body))
	assert.Equal(t, "accepted", decode[web.FireResponse](t, body).Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, server.triggers.Wait(ctx))

	page, err := server.persistence.ActionExecutions().List(ctx, persistence.ExecutionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestAPIHandlers_FirePublishesWhenBusConfigured(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "100", mock.MatchedBy(func(e eventbus.Event) bool {
		fired, ok := e.(events.TriggerFired)

		return ok && fired.Event.EventType == "Completed" && fired.Event.WorkflowID == models.ExactScope(7)
	})).Return(nil).Once()

	server := setupTestServer(t, withPublisher(bus))

	status, body := server.do(t, http.MethodPost, "/triggers/fire", stageCompleted(7))
	require.Equal(t, http.StatusAccepted, status, string(body))
	assert.NotEmpty(t, decode[web.FireResponse](t, body).EventID)

	bus.AssertExpectations(t)

	// nothing ran locally
	page, err := server.persistence.ActionExecutions().List(context.Background(), persistence.ExecutionQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestAPIHandlers_FirePublishFailure(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	server := setupTestServer(t, withPublisher(bus))

	status, _ := server.do(t, http.MethodPost, "/triggers/fire", stageCompleted(7))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	failing := server.createDefinition(t, "failing", `{"fail":true}`)

	status, body := server.do(t, http.MethodPost, fmt.Sprintf("/action-definitions/%d/test", failing.ID),
		map[string]any{"context_data": map[string]any{"lead": 1}})
	require.Equal(t, http.StatusOK, status, string(body))

	tested := decode[*models.ActionExecution](t, body)
	assert.True(t, tested.IsTest)
	assert.Equal(t, models.ExecutionStatusFailed, tested.Status)

	server.createMapping(t, failing.ID, 1, nil)

	status, body = server.do(t, http.MethodPost, "/triggers/dispatch", stageCompleted(7))
	require.Equal(t, http.StatusOK, status, string(body))

	failedID := decode[services.DispatchSummary](t, body).Results[0].ExecutionID

	status, body = server.do(t, http.MethodGet, "/action-executions/failed", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["count"])

	status, body = server.do(t, http.MethodPost, "/action-executions/"+failedID+"/retry", nil, web.UserIDHeader, "9")
	require.Equal(t, http.StatusCreated, status, string(body))

	retried := decode[*models.ActionExecution](t, body)
	assert.Equal(t, failedID, retried.RetryOf)
	assert.Equal(t, 1, retried.RetryCount)
	assert.NotEqual(t, failedID, retried.ExecutionID)

	status, _ = server.do(t, http.MethodPost, "/action-executions/"+failedID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, status, "a row is retried once")

	// a finalized row cannot be cancelled
	status, _ = server.do(t, http.MethodPost, "/action-executions/"+retried.ExecutionID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = server.do(t, http.MethodPost, "/action-executions/missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = server.do(t, http.MethodGet, fmt.Sprintf("/action-executions?action_definition_id=%d&exclude_tests=true", failing.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, int64(2), decode[persistence.ExecutionPage](t, body).Total)

	status, body = server.do(t, http.MethodGet, "/action-executions/stats?days=1", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	stats := decode[map[string]any](t, body)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 0, stats["success_rate"])
}

func TestAPIHandlers_Cancel(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)
	definition := server.createDefinition(t, "slow", "{}")

	running := &models.ActionExecution{
		ExecutionID:        "running-1",
		ActionDefinitionID: definition.ID,
		ActionName:         definition.ActionName,
		ActionType:         definition.ActionType,
		Status:             models.ExecutionStatusRunning,
		StartedAt:          time.Now().UTC().Add(-time.Second),
	}
	require.NoError(t, server.persistence.ActionExecutions().Create(context.Background(), running))

	status, body := server.do(t, http.MethodPost, "/action-executions/running-1/cancel", nil, web.UserIDHeader, "3")
	require.Equal(t, http.StatusOK, status, string(body))

	cancelled := decode[*models.ActionExecution](t, body)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled by user 3", cancelled.ErrorMessage)
}

func TestAPIHandlers_ActionTypes(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)

	status, body := server.do(t, http.MethodGet, "/action-types", nil)
	require.Equal(t, http.StatusOK, status)

	response := decode[map[string][]web.ActionTypeResponse](t, body)
	require.Len(t, response["action_types"], 1)
	assert.Equal(t, models.ActionTypeHTTPAPI, response["action_types"][0].ActionType)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		server := setupTestServer(t)

		status, body := server.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])
	})

	t.Run("persistence down", func(t *testing.T) {
		t.Parallel()

		unhealthy := mocks.NewMockPersistence()
		unhealthy.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

		server := setupTestServer(t, withHealth(unhealthy))

		status, body := server.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)

		response := decode[map[string]any](t, body)
		assert.Equal(t, "unhealthy", response["status"])
		assert.Equal(t, "connection refused", response["checkers"].(map[string]any)["persistence"])
	})
}

func TestAPIHandlers_Metrics(t *testing.T) {
	t.Parallel()

	server := setupTestServer(t)

	status, _ := server.do(t, http.MethodGet, "/action-types", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := server.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `actiond_http_requests_total{method="GET",route="/action-types",status="2xx"}`)
}
