// Package email provides the SendEmail action executor.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/protocol"
	"github.com/dukex/actiond/pkg/template"
)

const sendTimeout = 30 * time.Second

var ErrNotConfigured = errors.New("email delivery is not configured")

// Config is the ConfigJSON shape of a SendEmail definition. Recipient entries
// are templates too; one rendering to a JSON array expands to many addresses.
type Config struct {
	TemplateID string   `json:"templateId"`
	Recipients []string `json:"recipients"`
	CC         []string `json:"cc,omitempty"`
}

func ParseConfig(configJSON string) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal([]byte(configJSON), config); err != nil {
		return nil, fmt.Errorf("invalid SendEmail configuration: %w", err)
	}

	if config.TemplateID == "" {
		return nil, errors.New("missing required field 'templateId'")
	}

	return config, nil
}

type Executor struct {
	store  TemplateStore
	sender Sender
	logger *slog.Logger
}

func (e *Executor) ActionType() models.ActionType {
	return models.ActionTypeSendEmail
}

func (e *Executor) Execute(ctx context.Context, configJSON string, tc models.TriggerContext) (any, error) {
	config, err := ParseConfig(configJSON)
	if err != nil {
		return nil, err
	}

	tmpl, err := e.store.GetTemplate(ctx, config.TemplateID)
	if err != nil {
		return nil, err
	}

	data := tc.TemplateData()

	to, err := renderAddresses(append(append([]string{}, tmpl.Recipients...), config.Recipients...), data)
	if err != nil {
		return nil, err
	}

	if len(to) == 0 {
		return nil, errors.New("no recipients")
	}

	cc, err := renderAddresses(append(append([]string{}, tmpl.CC...), config.CC...), data)
	if err != nil {
		return nil, err
	}

	msg := Message{To: to, CC: cc}

	if msg.Subject, err = template.RenderString(tmpl.Subject, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	if msg.TextBody, err = template.RenderString(tmpl.TextBody, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	if msg.HTMLBody, err = renderHTML(tmpl.HTMLBody, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := e.sender.Send(ctx, msg); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Email sent", "template_id", tmpl.ID, "recipients", len(to), "execution_id", tc.ExecutionID)

	return map[string]any{
		"template_id": tmpl.ID,
		"recipients":  to,
		"cc":          cc,
		"subject":     msg.Subject,
	}, nil
}

func renderAddresses(entries []string, data map[string]any) ([]string, error) {
	seen := make(map[string]bool, len(entries))
	addresses := make([]string, 0, len(entries))

	add := func(raw string) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}

		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid email address %q: %w", raw, err)
		}

		if !seen[addr.Address] {
			seen[addr.Address] = true
			addresses = append(addresses, addr.Address)
		}

		return nil
	}

	for _, entry := range entries {
		rendered, err := template.Render(entry, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render recipient %q: %w", entry, err)
		}

		switch v := rendered.(type) {
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("recipient %q rendered a non-string item", entry)
				}

				if err := add(s); err != nil {
					return nil, err
				}
			}
		case string:
			for _, part := range strings.Split(v, ",") {
				if err := add(part); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("recipient %q rendered %T", entry, rendered)
		}
	}

	return addresses, nil
}

func renderHTML(body string, data map[string]any) (string, error) {
	if body == "" {
		return "", nil
	}

	tmpl, err := htmltemplate.New("html_body").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

type ExecutorFactory struct {
	store  TemplateStore
	sender Sender
}

// NewExecutorFactory creates the SendEmail factory. With a nil store or sender
// the type stays registered but every execution fails with ErrNotConfigured.
func NewExecutorFactory(store TemplateStore, sender Sender) *ExecutorFactory {
	return &ExecutorFactory{store: store, sender: sender}
}

func (f *ExecutorFactory) ActionType() models.ActionType {
	return models.ActionTypeSendEmail
}

func (f *ExecutorFactory) Name() string {
	return "Send Email"
}

func (f *ExecutorFactory) Description() string {
	return "Renders a stored email template with the trigger context and sends it over SMTP"
}

func (f *ExecutorFactory) Create(deps protocol.Dependencies) (protocol.ActionExecutor, error) {
	if f.store == nil || f.sender == nil {
		return nil, ErrNotConfigured
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{store: f.store, sender: f.sender, logger: logger}, nil
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"templateId": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Id of the email template",
			},
			"recipients": map[string]any{
				"type":        "array",
				"description": "Extra recipients. Entries support templating, e.g. {{.context.employee.email}}",
				"items":       map[string]any{"type": "string"},
			},
			"cc": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"templateId"},
	}
}
