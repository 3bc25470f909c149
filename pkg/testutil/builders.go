// Package testutil provides test data builders.
package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/dukex/actiond/pkg/models"
)

var seq atomic.Int64

// CreateTestDefinition returns an enabled HttpApi definition with a unique
// name; overrides are applied in order.
func CreateTestDefinition(overrides ...func(*models.ActionDefinition)) *models.ActionDefinition {
	definition := &models.ActionDefinition{
		ActionName:  fmt.Sprintf("test-action-%d", seq.Add(1)),
		ActionType:  models.ActionTypeHTTPAPI,
		Description: "Test action",
		ConfigJSON:  `{"url":"https://example.com/hook","method":"POST"}`,
		IsEnabled:   true,
	}

	for _, override := range overrides {
		override(definition)
	}

	return definition
}

// CreateTestMapping wires definitionID to (Stage, 100, Completed) with
// wildcard scopes.
func CreateTestMapping(definitionID int64, overrides ...func(*models.ActionTriggerMapping)) *models.ActionTriggerMapping {
	mapping := &models.ActionTriggerMapping{
		ActionDefinitionID: definitionID,
		TriggerType:        models.TriggerTypeStage,
		TriggerSourceID:    100,
		TriggerEvent:       "Completed",
		ExecutionOrder:     1,
		IsEnabled:          true,
	}

	for _, override := range overrides {
		override(mapping)
	}

	return mapping
}

// WithName sets the definition name.
func WithName(name string) func(*models.ActionDefinition) {
	return func(d *models.ActionDefinition) {
		d.ActionName = name
	}
}

// WithType sets the action type and config.
func WithType(actionType models.ActionType, configJSON string) func(*models.ActionDefinition) {
	return func(d *models.ActionDefinition) {
		d.ActionType = actionType
		d.ConfigJSON = configJSON
	}
}

// Disabled marks the definition disabled.
func Disabled() func(*models.ActionDefinition) {
	return func(d *models.ActionDefinition) {
		d.IsEnabled = false
	}
}

// WithOrder sets the mapping execution order.
func WithOrder(order int) func(*models.ActionTriggerMapping) {
	return func(m *models.ActionTriggerMapping) {
		m.ExecutionOrder = order
	}
}

// WithWorkflow scopes the mapping to one workflow.
func WithWorkflow(id int64) func(*models.ActionTriggerMapping) {
	return func(m *models.ActionTriggerMapping) {
		m.WorkflowID = models.ExactScope(id)
	}
}

// WithStage scopes the mapping to one stage.
func WithStage(id int64) func(*models.ActionTriggerMapping) {
	return func(m *models.ActionTriggerMapping) {
		m.StageID = models.ExactScope(id)
	}
}

// WithTrigger changes the trigger tuple.
func WithTrigger(triggerType models.TriggerType, sourceID int64, event string) func(*models.ActionTriggerMapping) {
	return func(m *models.ActionTriggerMapping) {
		m.TriggerType = triggerType
		m.TriggerSourceID = sourceID
		m.TriggerEvent = event
	}
}

// StageCompleted is the event matched by CreateTestMapping's default wiring.
func StageCompleted(workflowID models.Scope) models.TriggerEvent {
	return models.TriggerEvent{
		SourceType: models.TriggerTypeStage,
		SourceID:   100,
		EventType:  "Completed",
		WorkflowID: workflowID,
	}
}
