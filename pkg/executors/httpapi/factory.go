package httpapi

import (
	"net/http"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/protocol"
)

type ExecutorFactory struct {
	client *http.Client
}

// NewExecutorFactory creates the HttpApi factory. A nil client gets a default one;
// the per-request timeout always comes from the configuration.
func NewExecutorFactory(client *http.Client) *ExecutorFactory {
	return &ExecutorFactory{client: client}
}

func (f *ExecutorFactory) ActionType() models.ActionType {
	return models.ActionTypeHTTPAPI
}

func (f *ExecutorFactory) Name() string {
	return "HTTP API"
}

func (f *ExecutorFactory) Description() string {
	return "Calls an HTTP endpoint; URL, headers and body are templated from the trigger context"
}

func (f *ExecutorFactory) Create(deps protocol.Dependencies) (protocol.ActionExecutor, error) {
	return NewExecutor(f.client, deps.Logger), nil
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "URL to call. Supports templating with {{.context.field}} and {{.trigger.source_id}}",
				"examples": []string{
					"https://hr.example.com/api/employees/{{.context.employee_id}}/onboarded",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers. Values support templating",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"bodyTemplate": map[string]any{
				"type":        "string",
				"description": "Request body template",
				"examples": []string{
					`{"stage": {{.trigger.source_id}}, "event": "{{.trigger.event}}", "data": {{json .context}}}`,
				},
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
				"maximum":     maxTimeoutSeconds,
			},
		},
		"required": []string{"url"},
	}
}
