// Package protocol defines the contracts for pluggable action executors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/actiond/pkg/models"
)

// ActionExecutor runs one action type's configuration against a trigger context.
// Implementations never retry and must bound their own run time.
type ActionExecutor interface {
	// ActionType returns the discriminator this executor handles.
	ActionType() models.ActionType

	// Execute parses configJSON, performs the side effect and returns a
	// JSON-serializable result.
	Execute(ctx context.Context, configJSON string, tc models.TriggerContext) (any, error)
}

// ExecutorFactory creates executors and describes their configuration.
type ExecutorFactory interface {
	// ActionType returns the tag the created executors handle
	ActionType() models.ActionType

	// Name returns the human-readable name for this action type
	Name() string

	// Description returns a description of what the action does
	Description() string

	// Schema returns the JSON schema for the executor configuration
	Schema() map[string]any

	// Create builds an executor instance
	Create(deps Dependencies) (ActionExecutor, error)
}

// Dependencies contains what the registry hands to every factory.
type Dependencies struct {
	Logger *slog.Logger
}
