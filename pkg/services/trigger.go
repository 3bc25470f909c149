package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/actiond/pkg/metrics"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DispatchOutcome is what happened to one resolved mapping.
type DispatchOutcome string

const (
	DispatchExecuted DispatchOutcome = "executed"
	DispatchFailed   DispatchOutcome = "failed"
	DispatchSkipped  DispatchOutcome = "skipped"
)

// DispatchResult reports one resolved mapping of a dispatch.
type DispatchResult struct {
	MappingID          int64                  `json:"mapping_id"`
	ActionDefinitionID int64                  `json:"action_definition_id"`
	ExecutionOrder     int                    `json:"execution_order"`
	Outcome            DispatchOutcome        `json:"outcome"`
	ExecutionID        string                 `json:"execution_id,omitempty"`
	Status             models.ExecutionStatus `json:"status,omitempty"`
	Reason             string                 `json:"reason,omitempty"`
}

// DispatchSummary reports a whole dispatch. Results follow the resolved
// mapping order whatever the concurrency.
type DispatchSummary struct {
	Event    models.TriggerEvent `json:"event"`
	Matched  int                 `json:"matched"`
	Executed int                 `json:"executed"`
	Failed   int                 `json:"failed"`
	Skipped  int                 `json:"skipped"`
	Results  []DispatchResult    `json:"results"`
}

// TriggerConfig tunes the dispatcher.
type TriggerConfig struct {
	// MaxConcurrency bounds how many mapped actions of one dispatch run at
	// once. 1 (the default) runs them sequentially in resolved order.
	MaxConcurrency int

	Tracer trace.Tracer
}

// ActionTrigger resolves the mappings of a trigger event and runs each mapped
// action in isolation.
type ActionTrigger struct {
	mappings   *TriggerMapping
	executions *ActionExecution
	config     TriggerConfig
	logger     *slog.Logger

	inflight sync.WaitGroup
}

func NewActionTrigger(mappings *TriggerMapping, executions *ActionExecution, logger *slog.Logger, config TriggerConfig) *ActionTrigger {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}

	if config.Tracer == nil {
		config.Tracer = otelhelper.NoopTracer()
	}

	return &ActionTrigger{
		mappings:   mappings,
		executions: executions,
		config:     config,
		logger:     logger.With("module", "action_trigger_service"),
	}
}

// ResolveTrigger previews the mappings an event would dispatch.
func (s *ActionTrigger) ResolveTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.ActionTriggerMapping, error) {
	return s.mappings.GetMappingsForTrigger(ctx, event)
}

// ExecuteActionsForTrigger runs every mapped action of event and waits for
// all of them. Only an invalid event or a failed resolution returns an
// error; action failures are counted in the summary and recorded in the
// ledger.
func (s *ActionTrigger) ExecuteActionsForTrigger(ctx context.Context, event models.TriggerEvent) (*DispatchSummary, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.config.Tracer, "trigger.dispatch",
		attribute.String(otelhelper.TriggerSourceTypeKey, string(event.SourceType)),
		attribute.Int64(otelhelper.TriggerSourceIDKey, event.SourceID),
		attribute.String(otelhelper.TriggerEventKey, event.EventType),
	)
	defer span.End()

	logger := s.logger.With(
		"trigger_source_type", event.SourceType,
		"trigger_source_id", event.SourceID,
		"trigger_event", event.EventType,
		"workflow_id", event.WorkflowID.String(),
		"stage_id", event.StageID.String(),
	)

	mappings, err := s.mappings.GetMappingsForTrigger(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.Int(otelhelper.MappingCountKey, len(mappings)))

	summary := &DispatchSummary{
		Event:   event,
		Matched: len(mappings),
		Results: make([]DispatchResult, len(mappings)),
	}

	if len(mappings) == 0 {
		logger.DebugContext(ctx, "No action mapped to trigger")
		metrics.RecordDispatch(string(event.SourceType), 0, 0, 0)

		return summary, nil
	}

	logger.InfoContext(ctx, "Dispatching trigger", "mappings", len(mappings))

	if s.config.MaxConcurrency == 1 {
		for i, mapping := range mappings {
			summary.Results[i] = s.dispatchOne(ctx, logger, event, mapping)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.MaxConcurrency)

		for i, mapping := range mappings {
			g.Go(func() error {
				summary.Results[i] = s.dispatchOne(gctx, logger, event, mapping)

				return nil
			})
		}

		_ = g.Wait()
	}

	for _, result := range summary.Results {
		switch result.Outcome {
		case DispatchExecuted:
			summary.Executed++
		case DispatchFailed:
			summary.Failed++
		case DispatchSkipped:
			summary.Skipped++
		}
	}

	metrics.RecordDispatch(string(event.SourceType), summary.Executed, summary.Failed, summary.Skipped)

	logger.InfoContext(ctx, "Trigger dispatched",
		"executed", summary.Executed, "failed", summary.Failed, "skipped", summary.Skipped)

	return summary, nil
}

// dispatchOne runs one mapped action. It never panics and never returns an
// error: a failing action must not stop the rest of the dispatch.
func (s *ActionTrigger) dispatchOne(ctx context.Context, logger *slog.Logger, event models.TriggerEvent,
	mapping *models.ActionTriggerMapping,
) (result DispatchResult) {
	result = DispatchResult{
		MappingID:          mapping.ID,
		ActionDefinitionID: mapping.ActionDefinitionID,
		ExecutionOrder:     mapping.ExecutionOrder,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Action dispatch panicked", "mapping_id", mapping.ID, "panic", r)

			result.Outcome = DispatchFailed
			result.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	execution, err := s.executions.ExecuteAction(ctx, ExecuteActionRequest{
		DefinitionID: mapping.ActionDefinitionID,
		Trigger:      &event,
		UserID:       event.UserID,
	})

	switch {
	case errors.Is(err, ErrActionDefinitionNotFound), errors.Is(err, ErrActionDisabled):
		logger.DebugContext(ctx, "Skipping mapped action", "mapping_id", mapping.ID,
			"action_definition_id", mapping.ActionDefinitionID, "reason", err)

		result.Outcome = DispatchSkipped
		result.Reason = err.Error()
	case err != nil:
		logger.ErrorContext(ctx, "Failed to execute mapped action", "mapping_id", mapping.ID,
			"action_definition_id", mapping.ActionDefinitionID, "error", err)

		result.Outcome = DispatchFailed
		result.Reason = err.Error()
	default:
		result.ExecutionID = execution.ExecutionID
		result.Status = execution.Status
		result.Outcome = DispatchExecuted

		if execution.Status != models.ExecutionStatusSuccess {
			result.Outcome = DispatchFailed
			result.Reason = execution.ErrorMessage
		}
	}

	return result
}

// Fire dispatches event in the background and returns immediately. The
// dispatch is detached from ctx cancellation; use Wait to drain it.
func (s *ActionTrigger) Fire(ctx context.Context, event models.TriggerEvent) {
	s.inflight.Add(1)

	go func() {
		defer s.inflight.Done()

		if _, err := s.ExecuteActionsForTrigger(context.WithoutCancel(ctx), event); err != nil {
			s.logger.ErrorContext(ctx, "Background dispatch failed",
				"trigger_source_id", event.SourceID, "trigger_event", event.EventType, "error", err)
		}
	}()
}

// Wait blocks until every dispatch started with Fire has finished or ctx is
// done.
func (s *ActionTrigger) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
