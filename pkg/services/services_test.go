package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/persistence/file"
	"github.com/dukex/actiond/pkg/protocol"
	"github.com/dukex/actiond/pkg/registry"
	"github.com/stretchr/testify/require"
)

// recorder keeps the order in which definitions reached an executor.
type recorder struct {
	mu    sync.Mutex
	calls []int64
}

func (r *recorder) add(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, id)
}

func (r *recorder) Calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int64(nil), r.calls...)
}

type stubConfig struct {
	Fail  bool `json:"fail"`
	Panic bool `json:"panic"`
	Block bool `json:"block"`
}

type stubExecutor struct {
	actionType models.ActionType
	recorder   *recorder
}

func (s *stubExecutor) ActionType() models.ActionType { return s.actionType }

func (s *stubExecutor) Execute(ctx context.Context, configJSON string, tc models.TriggerContext) (any, error) {
	s.recorder.add(tc.ActionDefinitionID)

	var cfg stubConfig
	_ = json.Unmarshal([]byte(configJSON), &cfg)

	switch {
	case cfg.Panic:
		panic("executor exploded")
	case cfg.Fail:
		return nil, errors.New("remote returned 500")
	case cfg.Block:
		<-ctx.Done()

		return nil, ctx.Err()
	}

	return map[string]any{
		"ok":        true,
		"source_id": tc.SourceID,
		"context":   tc.Data,
	}, nil
}

type stubFactory struct {
	actionType models.ActionType
	schema     map[string]any
	recorder   *recorder
}

func (f *stubFactory) ActionType() models.ActionType { return f.actionType }
func (f *stubFactory) Name() string                  { return string(f.actionType) }
func (f *stubFactory) Description() string           { return "stub" }
func (f *stubFactory) Schema() map[string]any        { return f.schema }

func (f *stubFactory) Create(protocol.Dependencies) (protocol.ActionExecutor, error) {
	return &stubExecutor{actionType: f.actionType, recorder: f.recorder}, nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) Events() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

type testEnv struct {
	persistence *file.Persistence
	recorder    *recorder
	publisher   *recordingPublisher
	definitions *ActionDefinition
	mappings    *TriggerMapping
	executions  *ActionExecution
	triggers    *ActionTrigger
}

type envOption func(*ExecutionConfig, *TriggerConfig)

func withExecutorTimeout(d time.Duration) envOption {
	return func(c *ExecutionConfig, _ *TriggerConfig) { c.ExecutorTimeout = d }
}

func withMaxRetry(n int) envOption {
	return func(c *ExecutionConfig, _ *TriggerConfig) { c.MaxRetryCount = n }
}

func withStaleAfter(d time.Duration) envOption {
	return func(c *ExecutionConfig, _ *TriggerConfig) { c.StaleAfter = d }
}

func withConcurrency(n int) envOption {
	return func(_ *ExecutionConfig, c *TriggerConfig) { c.MaxConcurrency = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	rec := &recorder{}
	pub := &recordingPublisher{}

	reg := registry.NewRegistry(logger)
	reg.Register(&stubFactory{actionType: models.ActionTypeHTTPAPI, recorder: rec})
	reg.Register(&stubFactory{
		actionType: models.ActionTypeSendEmail,
		recorder:   rec,
		schema: map[string]any{
			"type":     "object",
			"required": []any{"templateId"},
			"properties": map[string]any{
				"templateId": map[string]any{"type": "string"},
			},
		},
	})

	execConfig := ExecutionConfig{Publisher: pub}
	triggerConfig := TriggerConfig{}

	for _, opt := range opts {
		opt(&execConfig, &triggerConfig)
	}

	definitions := NewActionDefinition(p, logger)
	mappings := NewTriggerMapping(p, logger)
	executions := NewActionExecution(p, reg, logger, execConfig)

	return &testEnv{
		persistence: p,
		recorder:    rec,
		publisher:   pub,
		definitions: definitions,
		mappings:    mappings,
		executions:  executions,
		triggers:    NewActionTrigger(mappings, executions, logger, triggerConfig),
	}
}

func boolPtr(b bool) *bool { return &b }

func int64Ptr(i int64) *int64 { return &i }

func (e *testEnv) createDefinition(t *testing.T, name string, actionType models.ActionType, config string) *models.ActionDefinition {
	t.Helper()

	definition, err := e.definitions.Create(context.Background(), SaveDefinitionRequest{
		ActionName: name,
		ActionType: actionType,
		ConfigJSON: config,
		UserID:     int64Ptr(1),
	})
	require.NoError(t, err)

	return definition
}

func (e *testEnv) mapStageCompleted(t *testing.T, definitionID int64, order int, workflow models.Scope) *models.ActionTriggerMapping {
	t.Helper()

	mapping, err := e.mappings.Create(context.Background(), SaveMappingRequest{
		ActionDefinitionID: definitionID,
		TriggerType:        models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		WorkflowID:         workflow,
		ExecutionOrder:     order,
	})
	require.NoError(t, err)

	return mapping
}

func (e *testEnv) ledger(t *testing.T) []*models.ActionExecution {
	t.Helper()

	page, err := e.persistence.ActionExecutions().List(context.Background(), persistence.ExecutionQuery{Limit: persistence.MaxPageSize})
	require.NoError(t, err)

	return page.Items
}
