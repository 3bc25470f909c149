package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerContext() models.TriggerContext {
	return models.TriggerContext{
		ExecutionID:        "exec-1",
		ActionDefinitionID: 1,
		ActionName:         "notify-hr",
		SourceType:         models.TriggerTypeStage,
		SourceID:           100,
		EventType:          "Completed",
		WorkflowID:         models.ExactScope(7),
		Data:               map[string]any{"employee_id": 55, "token": "secret"},
	}
}

func configJSON(t *testing.T, config map[string]any) string {
	t.Helper()

	b, err := json.Marshal(config)
	require.NoError(t, err)

	return string(b)
}

func TestExecute_RendersRequest(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotAuth   string
		gotBody   map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	executor := NewExecutor(nil, nil)

	result, err := executor.Execute(context.Background(), configJSON(t, map[string]any{
		"url":          server.URL + "/employees/{{.context.employee_id}}",
		"method":       "post",
		"headers":      map[string]string{"Authorization": "Bearer {{.context.token}}"},
		"bodyTemplate": `{"stage": {{.trigger.source_id}}, "workflow": {{.trigger.workflow_id}}}`,
	}), triggerContext())
	require.NoError(t, err)

	assert.Equal(t, "/employees/55", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, map[string]any{"stage": 100.0, "workflow": 7.0}, gotBody)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resultMap["status_code"])
	assert.Equal(t, map[string]any{"accepted": true}, resultMap["json"])
}

func TestExecute_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewExecutor(nil, nil).Execute(context.Background(), configJSON(t, map[string]any{
		"url": server.URL,
	}), triggerContext())
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "upstream down", httpErr.Message)
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewExecutor(nil, nil).Execute(ctx, configJSON(t, map[string]any{
		"url":     server.URL,
		"timeout": 5,
	}), triggerContext())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:   "defaults",
			config: `{"url":"https://example.com"}`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, http.MethodGet, c.Method)
				assert.Equal(t, defaultTimeoutSeconds, c.Timeout)
			},
		},
		{name: "missing url", config: `{"method":"GET"}`, wantErr: "missing required field 'url'"},
		{name: "malformed", config: `{"url":`, wantErr: "invalid HttpApi configuration"},
		{name: "timeout too large", config: `{"url":"https://example.com","timeout":301}`, wantErr: "timeout must be between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParseConfig(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestExecute_MissingTemplateKey(t *testing.T) {
	_, err := NewExecutor(nil, nil).Execute(context.Background(), configJSON(t, map[string]any{
		"url": "https://example.com/{{.context.unknown}}",
	}), triggerContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render URL template")
}

func TestFactory(t *testing.T) {
	factory := NewExecutorFactory(nil)
	assert.Equal(t, models.ActionTypeHTTPAPI, factory.ActionType())
	assert.NotEmpty(t, factory.Name())
	assert.Contains(t, factory.Schema()["required"], "url")
}
