package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of one action execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "Pending"
	ExecutionStatusRunning   ExecutionStatus = "Running"
	ExecutionStatusSuccess   ExecutionStatus = "Success"
	ExecutionStatusFailed    ExecutionStatus = "Failed"
	ExecutionStatusCancelled ExecutionStatus = "Cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes Pending -> Running -> {Success, Failed, Cancelled}.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next.IsTerminal()
	case ExecutionStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ActionExecution is one ledger row: a single attempt to run a definition.
type ActionExecution struct {
	ID                 int64      `json:"id"`
	ExecutionID        string     `json:"execution_id"`
	ActionDefinitionID int64      `json:"action_definition_id"`
	ActionName         string     `json:"action_name"`
	ActionType         ActionType `json:"action_type"`

	TriggerSourceType TriggerType `json:"trigger_source_type,omitempty"`
	TriggerSourceID   int64       `json:"trigger_source_id,omitempty"`
	TriggerEvent      string      `json:"trigger_event,omitempty"`

	ContextData json.RawMessage `json:"context_data,omitempty"`
	ExecutedBy  *int64          `json:"executed_by,omitempty"`

	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`

	RetryCount int    `json:"retry_count"`
	RetryOf    string `json:"retry_of,omitempty"`
	IsTest     bool   `json:"is_test"`
	IsValid    bool   `json:"is_valid"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionOutcome is the single terminal write applied to a ledger row.
type ExecutionOutcome struct {
	Status       ExecutionStatus
	CompletedAt  time.Time
	DurationMs   int64
	Result       json.RawMessage
	ErrorMessage string
}

// ExecutionStats aggregates the ledger over a time window.
type ExecutionStats struct {
	Since             time.Time                 `json:"since"`
	Total             int64                     `json:"total"`
	ByStatus          map[ExecutionStatus]int64 `json:"by_status"`
	AverageDurationMs float64                   `json:"average_duration_ms"`
}

// SuccessRate returns the share of finished executions that succeeded.
func (s *ExecutionStats) SuccessRate() float64 {
	finished := s.ByStatus[ExecutionStatusSuccess] + s.ByStatus[ExecutionStatusFailed]
	if finished == 0 {
		return 0
	}

	return float64(s.ByStatus[ExecutionStatusSuccess]) / float64(finished)
}
