// Package web provides HTTP request and response types for the actiond API.
package web

import (
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/protocol"
)

// UserIDHeader carries the acting user; it ends up in CreatedBy, ModifiedBy
// and ExecutedBy.
const UserIDHeader = "X-User-Id"

// SetStatusRequest enables or disables a single definition or mapping.
type SetStatusRequest struct {
	IsEnabled *bool `json:"is_enabled" validate:"required"`
}

// BatchSetStatusRequest enables or disables several definitions at once.
type BatchSetStatusRequest struct {
	IDs       []int64 `json:"ids"        validate:"required,min=1,max=100,dive,gt=0"`
	IsEnabled *bool   `json:"is_enabled" validate:"required"`
}

// TestActionRequest runs a definition once, outside any trigger.
type TestActionRequest struct {
	ContextData map[string]any `json:"context_data"`
}

// ActionTypeResponse describes one registered executor.
type ActionTypeResponse struct {
	ActionType  models.ActionType `json:"action_type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      map[string]any    `json:"schema,omitempty"`
}

func TransformActionType(factory protocol.ExecutorFactory) ActionTypeResponse {
	return ActionTypeResponse{
		ActionType:  factory.ActionType(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}
}

// FireResponse acknowledges an accepted trigger event.
type FireResponse struct {
	Status  string              `json:"status"`
	EventID string              `json:"event_id,omitempty"`
	Event   models.TriggerEvent `json:"event"`
}

// ResolveResponse previews which mappings an event would run.
type ResolveResponse struct {
	Event    models.TriggerEvent            `json:"event"`
	Count    int                            `json:"count"`
	Mappings []*models.ActionTriggerMapping `json:"mappings"`
}
