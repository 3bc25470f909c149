package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerFired_Wire(t *testing.T) {
	event := NewTriggerFired("evt-1", models.TriggerEvent{
		SourceType:  models.TriggerTypeStage,
		SourceID:    100,
		EventType:   "Completed",
		ContextData: map[string]any{"employee_id": 7},
		WorkflowID:  models.ExactScope(42),
	})

	assert.Equal(t, TriggerFiredEvent, event.GetType())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"trigger.fired"`)
	assert.Contains(t, string(data), `"workflow_id":42`)
	assert.Contains(t, string(data), `"stage_id":null`)

	var decoded TriggerFired
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, models.ExactScope(42), decoded.Event.WorkflowID)
	assert.True(t, decoded.Event.StageID.IsAny())
	assert.Equal(t, int64(100), decoded.Event.SourceID)
}

func TestNewActionExecutionFinished(t *testing.T) {
	execution := &models.ActionExecution{
		ExecutionID:        "exec-1",
		ActionDefinitionID: 3,
		ActionName:         "notify",
		ActionType:         models.ActionTypeSendEmail,
		Status:             models.ExecutionStatusFailed,
		DurationMs:         12,
		ErrorMessage:       "smtp down",
		RetryOf:            "exec-0",
	}

	event := NewActionExecutionFinished("evt-2", execution)

	assert.Equal(t, ActionExecutionFinishedEvent, event.GetType())
	assert.Equal(t, "exec-1", event.ExecutionID)
	assert.Equal(t, models.ExecutionStatusFailed, event.Status)
	assert.Equal(t, "smtp down", event.ErrorMessage)
	assert.Equal(t, "exec-0", event.RetryOf)
}
