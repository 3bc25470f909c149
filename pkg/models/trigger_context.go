package models

// TriggerContext is what an executor receives alongside its configuration.
type TriggerContext struct {
	ExecutionID        string
	ActionDefinitionID int64
	ActionName         string

	SourceType TriggerType
	SourceID   int64
	EventType  string
	WorkflowID Scope
	StageID    Scope
	UserID     *int64

	Data map[string]any
}

// TemplateData exposes the context to configuration templates, e.g.
// {{.context.email}} or {{.trigger.source_id}}.
func (tc TriggerContext) TemplateData() map[string]any {
	data := tc.Data
	if data == nil {
		data = map[string]any{}
	}

	var userID any
	if tc.UserID != nil {
		userID = *tc.UserID
	}

	return map[string]any{
		"context": data,
		"trigger": map[string]any{
			"source_type": string(tc.SourceType),
			"source_id":   tc.SourceID,
			"event":       tc.EventType,
			"workflow_id": scopeValue(tc.WorkflowID),
			"stage_id":    scopeValue(tc.StageID),
		},
		"execution": map[string]any{
			"id":                   tc.ExecutionID,
			"action_definition_id": tc.ActionDefinitionID,
			"action_name":          tc.ActionName,
		},
		"user_id": userID,
	}
}

func scopeValue(s Scope) any {
	if id, ok := s.ID(); ok {
		return id
	}

	return nil
}
