package models

import (
	"time"
)

// TriggerType is the kind of business entity that raises an event.
type TriggerType string

const (
	TriggerTypeStage       TriggerType = "Stage"
	TriggerTypeTask        TriggerType = "Task"
	TriggerTypeQuestion    TriggerType = "Question"
	TriggerTypeWorkflow    TriggerType = "Workflow"
	TriggerTypeIntegration TriggerType = "Integration"
)

// ActionTriggerMapping wires one action definition to a firing condition.
type ActionTriggerMapping struct {
	ID                 int64       `json:"id"`
	ActionDefinitionID int64       `json:"action_definition_id"`
	TriggerType        TriggerType `json:"trigger_type"`
	TriggerSourceID    int64       `json:"trigger_source_id"`
	TriggerEvent       string      `json:"trigger_event"`
	WorkflowID         Scope       `json:"workflow_id"`
	StageID            Scope       `json:"stage_id"`
	ExecutionOrder     int         `json:"execution_order"`
	Description        string      `json:"description,omitempty"`

	IsEnabled bool `json:"is_enabled"`
	IsValid   bool `json:"is_valid"`

	CreatedBy  *int64    `json:"created_by,omitempty"`
	ModifiedBy *int64    `json:"modified_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Matches reports whether the mapping fires for the event. The trigger type
// is only compared when the event names one.
func (m *ActionTriggerMapping) Matches(event TriggerEvent) bool {
	if !m.IsEnabled || !m.IsValid {
		return false
	}

	if m.TriggerSourceID != event.SourceID || m.TriggerEvent != event.EventType {
		return false
	}

	if event.SourceType != "" && m.TriggerType != event.SourceType {
		return false
	}

	return m.WorkflowID.Matches(event.WorkflowID) && m.StageID.Matches(event.StageID)
}

// TriggerEvent is raised by business collaborators when a qualifying state
// change happens.
type TriggerEvent struct {
	SourceType  TriggerType    `json:"trigger_source_type,omitempty"`
	SourceID    int64          `json:"trigger_source_id"             validate:"required"`
	EventType   string         `json:"trigger_event_type"            validate:"required"`
	ContextData map[string]any `json:"context_data,omitempty"`
	UserID      *int64         `json:"user_id,omitempty"`
	WorkflowID  Scope          `json:"workflow_id"`
	StageID     Scope          `json:"stage_id"`
}
