// Package httpapi provides the HttpApi action executor.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/template"
)

const (
	defaultTimeoutSeconds = 30
	maxTimeoutSeconds     = 300
	maxResponseBytes      = 1 << 20
)

// Config is the ConfigJSON shape of an HttpApi definition.
type Config struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	BodyTemplate string            `json:"bodyTemplate"`
	Timeout      int               `json:"timeout"`
}

// HTTPError is returned when the remote answers with a status >= 400.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(client *http.Client, logger *slog.Logger) *Executor {
	if client == nil {
		client = &http.Client{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{client: client, logger: logger}
}

func (e *Executor) ActionType() models.ActionType {
	return models.ActionTypeHTTPAPI
}

// ParseConfig decodes configJSON and applies defaults.
func ParseConfig(configJSON string) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal([]byte(configJSON), config); err != nil {
		return nil, fmt.Errorf("invalid HttpApi configuration: %w", err)
	}

	if config.URL == "" {
		return nil, errors.New("missing required field 'url'")
	}

	config.Method = strings.ToUpper(config.Method)
	if config.Method == "" {
		config.Method = http.MethodGet
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeoutSeconds
	}

	if config.Timeout < 1 || config.Timeout > maxTimeoutSeconds {
		return nil, fmt.Errorf("timeout must be between 1 and %d seconds", maxTimeoutSeconds)
	}

	return config, nil
}

// Execute renders the request from the trigger context and performs it once.
func (e *Executor) Execute(ctx context.Context, configJSON string, tc models.TriggerContext) (any, error) {
	config, err := ParseConfig(configJSON)
	if err != nil {
		return nil, err
	}

	data := tc.TemplateData()

	url, err := template.RenderString(config.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	var body string
	if config.BodyTemplate != "" {
		body, err = template.RenderString(config.BodyTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}
	}

	headers := make(map[string]string, len(config.Headers))
	for key, value := range config.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		headers[key] = rendered
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(config.Timeout)*time.Second)
	defer cancel()

	return e.performRequest(ctx, config.Method, url, body, headers)
}

func (e *Executor) performRequest(ctx context.Context, method, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			e.logger.WarnContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		responseHeaders[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     responseHeaders,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}
