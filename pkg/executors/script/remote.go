package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Status ids of the code runner; anything above statusAccepted is a failure.
const (
	statusInQueue    = 1
	statusProcessing = 2
	statusAccepted   = 3
)

const defaultPollInterval = 500 * time.Millisecond

var languageIDs = map[string]int{
	"bash":       46,
	"c":          50,
	"csharp":     51,
	"cpp":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
	"ruby":       72,
	"typescript": 74,
}

// RemoteExecutionError carries a non-accepted verdict from the code runner.
type RemoteExecutionError struct {
	StatusID    int
	Description string
	Stderr      string
}

func (e *RemoteExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote execution %s (%d): %s", e.Description, e.StatusID, e.Stderr)
	}

	return fmt.Sprintf("remote execution %s (%d)", e.Description, e.StatusID)
}

type submissionRequest struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin,omitempty"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
}

type submissionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResult struct {
	Token         string           `json:"token"`
	Stdout        *string          `json:"stdout"`
	Stderr        *string          `json:"stderr"`
	CompileOutput *string          `json:"compile_output"`
	Message       *string          `json:"message"`
	Time          *string          `json:"time"`
	Memory        *float64         `json:"memory"`
	Status        submissionStatus `json:"status"`
}

// RemoteRunner submits programs to a Judge0-compatible service and polls the
// submission token until a verdict or the context deadline.
type RemoteRunner struct {
	baseURL      string
	token        string
	client       *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewRemoteRunner(baseURL, token string, client *http.Client, logger *slog.Logger) *RemoteRunner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RemoteRunner{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		client:       client,
		pollInterval: defaultPollInterval,
		logger:       logger.With("module", "code_runner"),
	}
}

func languageID(language string) (int, error) {
	if id, ok := languageIDs[language]; ok {
		return id, nil
	}

	if id, err := strconv.Atoi(language); err == nil && id > 0 {
		return id, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
}

func (r *RemoteRunner) Run(ctx context.Context, program Program) (map[string]any, error) {
	langID, err := languageID(program.Language)
	if err != nil {
		return nil, err
	}

	token, err := r.submit(ctx, submissionRequest{
		SourceCode:   program.SourceCode,
		LanguageID:   langID,
		Stdin:        program.Stdin,
		CPUTimeLimit: program.TimeLimit.Seconds(),
	})
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Submitted program", "token", token, "language", program.Language)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		result, err := r.fetch(ctx, token)
		if err != nil {
			return nil, err
		}

		switch {
		case result.Status.ID == statusInQueue || result.Status.ID == statusProcessing:
		case result.Status.ID == statusAccepted:
			return map[string]any{
				"language": program.Language,
				"token":    token,
				"stdout":   deref(result.Stdout),
				"time":     deref(result.Time),
				"memory":   result.Memory,
				"status":   result.Status.Description,
			}, nil
		default:
			stderr := deref(result.Stderr)
			if stderr == "" {
				stderr = deref(result.CompileOutput)
			}

			if stderr == "" {
				stderr = deref(result.Message)
			}

			return nil, &RemoteExecutionError{
				StatusID:    result.Status.ID,
				Description: result.Status.Description,
				Stderr:      stderr,
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("remote execution %s did not finish: %w", token, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *RemoteRunner) submit(ctx context.Context, submission submissionRequest) (string, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/submissions?base64_encoded=false&wait=false", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create submission request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	var result submissionResult
	if err := r.do(req, &result); err != nil {
		return "", fmt.Errorf("failed to submit program: %w", err)
	}

	if result.Token == "" {
		return "", fmt.Errorf("code runner returned no submission token")
	}

	return result.Token, nil
}

func (r *RemoteRunner) fetch(ctx context.Context, token string) (*submissionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/submissions/"+token+"?base64_encoded=false", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}

	var result submissionResult
	if err := r.do(req, &result); err != nil {
		return nil, fmt.Errorf("failed to poll submission %s: %w", token, err)
	}

	return &result, nil
}

func (r *RemoteRunner) do(req *http.Request, out any) error {
	if r.token != "" {
		req.Header.Set("X-Auth-Token", r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("code runner answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.Unmarshal(body, out)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
