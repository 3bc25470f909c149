// Package triggers holds the intakes that receive trigger events from
// business collaborators outside the event bus.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/actiond/pkg/models"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidEvent = errors.New("invalid trigger event")

// Handler receives every decoded event. It should return quickly; the
// dispatcher's Fire is the usual handler.
type Handler func(ctx context.Context, event models.TriggerEvent) error

// Intake is a long-running consumer of trigger events.
type Intake interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates one JSON encoded trigger event.
func Decode(data []byte) (models.TriggerEvent, error) {
	var event models.TriggerEvent

	if err := json.Unmarshal(data, &event); err != nil {
		return models.TriggerEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if err := validate.Struct(event); err != nil {
		return models.TriggerEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return event, nil
}

// Encode is the inverse of Decode, used by producers.
func Encode(event models.TriggerEvent) ([]byte, error) {
	if err := validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return json.Marshal(event)
}
