// Package events defines the messages exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/actiond/pkg/models"
)

type EventType string

// Topic carries every actiond event; consumers filter on the event type
// metadata.
const Topic = "actiond.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// TriggerFiredEvent is raised by business collaborators; the dispatcher
	// resolves and runs the mapped actions.
	TriggerFiredEvent EventType = "trigger.fired"

	// ActionExecutionFinishedEvent is published once per finalized ledger row.
	ActionExecutionFinishedEvent EventType = "action.execution.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TriggerFired struct {
	BaseEvent

	Event models.TriggerEvent `json:"event"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

// NewTriggerFired wraps a trigger event for publishing.
func NewTriggerFired(id string, event models.TriggerEvent) TriggerFired {
	return TriggerFired{
		BaseEvent: BaseEvent{ID: id, Type: TriggerFiredEvent, Timestamp: time.Now().UTC()},
		Event:     event,
	}
}

type ActionExecutionFinished struct {
	BaseEvent

	ExecutionID        string                 `json:"execution_id"`
	ActionDefinitionID int64                  `json:"action_definition_id"`
	ActionName         string                 `json:"action_name"`
	ActionType         models.ActionType      `json:"action_type"`
	Status             models.ExecutionStatus `json:"status"`
	DurationMs         int64                  `json:"duration_ms"`
	ErrorMessage       string                 `json:"error_message,omitempty"`
	TriggerSourceType  models.TriggerType     `json:"trigger_source_type,omitempty"`
	TriggerSourceID    int64                  `json:"trigger_source_id,omitempty"`
	TriggerEvent       string                 `json:"trigger_event,omitempty"`
	RetryOf            string                 `json:"retry_of,omitempty"`
	IsTest             bool                   `json:"is_test"`
}

func (e ActionExecutionFinished) GetType() EventType {
	return ActionExecutionFinishedEvent
}

// NewActionExecutionFinished summarizes a finalized ledger row.
func NewActionExecutionFinished(id string, execution *models.ActionExecution) ActionExecutionFinished {
	return ActionExecutionFinished{
		BaseEvent:          BaseEvent{ID: id, Type: ActionExecutionFinishedEvent, Timestamp: time.Now().UTC()},
		ExecutionID:        execution.ExecutionID,
		ActionDefinitionID: execution.ActionDefinitionID,
		ActionName:         execution.ActionName,
		ActionType:         execution.ActionType,
		Status:             execution.Status,
		DurationMs:         execution.DurationMs,
		ErrorMessage:       execution.ErrorMessage,
		TriggerSourceType:  execution.TriggerSourceType,
		TriggerSourceID:    execution.TriggerSourceID,
		TriggerEvent:       execution.TriggerEvent,
		RetryOf:            execution.RetryOf,
		IsTest:             execution.IsTest,
	}
}
