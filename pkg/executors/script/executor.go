// Package script provides the Script action executor. Lua and expr programs run
// in-process; every other language is sent to a remote code runner.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/protocol"
)

const (
	defaultTimeLimitSeconds = 10
	maxTimeLimitSeconds     = 60
)

var ErrUnsupportedLanguage = errors.New("unsupported script language")

// Config is the ConfigJSON shape of a Script definition.
type Config struct {
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
	Stdin      string `json:"stdin,omitempty"`
	TimeLimit  int    `json:"timeLimit,omitempty"`
}

// Program is one script invocation handed to a Runner.
type Program struct {
	Language   string
	SourceCode string
	Stdin      string
	TimeLimit  time.Duration
	Data       map[string]any
}

// Runner executes programs of one or more languages.
type Runner interface {
	Run(ctx context.Context, program Program) (map[string]any, error)
}

func ParseConfig(configJSON string) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal([]byte(configJSON), config); err != nil {
		return nil, fmt.Errorf("invalid Script configuration: %w", err)
	}

	config.Language = strings.ToLower(strings.TrimSpace(config.Language))
	if config.Language == "" {
		return nil, errors.New("missing required field 'language'")
	}

	if strings.TrimSpace(config.SourceCode) == "" {
		return nil, errors.New("missing required field 'sourceCode'")
	}

	if config.TimeLimit == 0 {
		config.TimeLimit = defaultTimeLimitSeconds
	}

	if config.TimeLimit < 1 || config.TimeLimit > maxTimeLimitSeconds {
		return nil, fmt.Errorf("timeLimit must be between 1 and %d seconds", maxTimeLimitSeconds)
	}

	return config, nil
}

type Executor struct {
	runners map[string]Runner
	remote  Runner
	logger  *slog.Logger
}

func (e *Executor) ActionType() models.ActionType {
	return models.ActionTypeScript
}

func (e *Executor) runner(language string) (Runner, error) {
	if r, ok := e.runners[language]; ok {
		return r, nil
	}

	if e.remote != nil {
		return e.remote, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
}

// Execute runs the program under its time limit.
func (e *Executor) Execute(ctx context.Context, configJSON string, tc models.TriggerContext) (any, error) {
	config, err := ParseConfig(configJSON)
	if err != nil {
		return nil, err
	}

	runner, err := e.runner(config.Language)
	if err != nil {
		return nil, err
	}

	limit := time.Duration(config.TimeLimit) * time.Second

	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	e.logger.DebugContext(ctx, "Running script", "language", config.Language, "execution_id", tc.ExecutionID)

	return runner.Run(ctx, Program{
		Language:   config.Language,
		SourceCode: config.SourceCode,
		Stdin:      config.Stdin,
		TimeLimit:  limit,
		Data:       tc.TemplateData(),
	})
}

type ExecutorFactory struct {
	remote Runner
}

// NewExecutorFactory creates the Script factory. remote may be nil, in which
// case only the in-process languages are available.
func NewExecutorFactory(remote Runner) *ExecutorFactory {
	return &ExecutorFactory{remote: remote}
}

func (f *ExecutorFactory) ActionType() models.ActionType {
	return models.ActionTypeScript
}

func (f *ExecutorFactory) Name() string {
	return "Script"
}

func (f *ExecutorFactory) Description() string {
	return "Runs a script with the trigger context. lua and expr run in-process, other languages on the code runner"
}

func (f *ExecutorFactory) Create(deps protocol.Dependencies) (protocol.ActionExecutor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		runners: map[string]Runner{
			LanguageLua:  &LuaRunner{},
			LanguageExpr: &ExprRunner{},
		},
		remote: f.remote,
		logger: logger,
	}, nil
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Script language: lua, expr, or a language known to the code runner (python, javascript, ...)",
			},
			"sourceCode": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Program source. Lua scripts read the trigger data from the global 'context'",
				"examples": []string{
					`return { greeting = "hello " .. context.context.name }`,
					`trigger.source_id > 10 && context.amount >= 100`,
				},
			},
			"stdin": map[string]any{
				"type":        "string",
				"description": "Standard input for remote programs",
			},
			"timeLimit": map[string]any{
				"type":        "integer",
				"description": "Execution time limit in seconds",
				"default":     defaultTimeLimitSeconds,
				"minimum":     1,
				"maximum":     maxTimeLimitSeconds,
			},
		},
		"required": []string{"language", "sourceCode"},
	}
}
