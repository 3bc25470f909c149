package models

import "time"

// ActionType discriminates which executor runs a definition.
type ActionType string

const (
	ActionTypeHTTPAPI   ActionType = "HttpApi"
	ActionTypeScript    ActionType = "Script"
	ActionTypeSendEmail ActionType = "SendEmail"
)

// ActionDefinition is a named, reusable unit of side-effect configuration.
type ActionDefinition struct {
	ID          int64      `json:"id"`
	ActionName  string     `json:"action_name"`
	ActionType  ActionType `json:"action_type"`
	Description string     `json:"description,omitempty"`

	// ConfigJSON is interpreted only by the executor registered for ActionType.
	ConfigJSON string `json:"config_json"`

	IsEnabled bool `json:"is_enabled"`
	IsValid   bool `json:"is_valid"`

	CreatedBy  *int64    `json:"created_by,omitempty"`
	ModifiedBy *int64    `json:"modified_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Dispatchable reports whether the definition may run from a trigger.
func (d *ActionDefinition) Dispatchable() bool {
	return d.IsValid && d.IsEnabled
}
