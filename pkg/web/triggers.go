package web

import (
	"context"
	"strconv"

	"github.com/dukex/actiond/pkg/events"
	"github.com/dukex/actiond/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func (h *APIHandlers) bindEvent(c fiber.Ctx) (models.TriggerEvent, error) {
	var event models.TriggerEvent
	if err := c.Bind().JSON(&event); err != nil {
		return event, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return event, badRequest(c, err.Error())
	}

	return event, nil
}

// FireTrigger accepts a trigger event and returns 202 before any action runs.
func (h *APIHandlers) FireTrigger(c fiber.Ctx) error {
	event, err := h.bindEvent(c)
	if err != nil {
		return err
	}

	if event.UserID == nil {
		if event.UserID, err = userID(c); err != nil {
			return badRequest(c, err.Error())
		}
	}

	response := FireResponse{Status: "accepted", Event: event}

	if h.publisher != nil {
		response.EventID = uuid.NewString()

		key := strconv.FormatInt(event.SourceID, 10)
		if err := h.publisher.Publish(c.Context(), key, events.NewTriggerFired(response.EventID, event)); err != nil {
			return internalError(c, err)
		}
	} else {
		// the request context does not outlive the handler
		h.triggers.Fire(context.Background(), event)
	}

	h.logger.InfoContext(c.Context(), "Trigger accepted",
		"trigger_source_type", event.SourceType,
		"trigger_source_id", event.SourceID,
		"trigger_event", event.EventType,
		"published", h.publisher != nil)

	return c.Status(fiber.StatusAccepted).JSON(response)
}

// DispatchTrigger runs the matched actions and returns the summary.
func (h *APIHandlers) DispatchTrigger(c fiber.Ctx) error {
	event, err := h.bindEvent(c)
	if err != nil {
		return err
	}

	if event.UserID == nil {
		if event.UserID, err = userID(c); err != nil {
			return badRequest(c, err.Error())
		}
	}

	summary, err := h.triggers.ExecuteActionsForTrigger(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}

// ResolveTrigger previews the mappings an event would run, without running
// them.
func (h *APIHandlers) ResolveTrigger(c fiber.Ctx) error {
	event, err := eventFromQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	mappings, err := h.triggers.ResolveTrigger(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResolveResponse{Event: event, Count: len(mappings), Mappings: mappings})
}

func eventFromQuery(c fiber.Ctx) (models.TriggerEvent, error) {
	event := models.TriggerEvent{
		SourceType: models.TriggerType(c.Query("trigger_source_type")),
		EventType:  c.Query("trigger_event_type"),
	}

	var err error

	if raw := c.Query("trigger_source_id"); raw != "" {
		if event.SourceID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return event, errInvalidQuery("trigger_source_id")
		}
	}

	if event.WorkflowID, err = scopeQuery(c, "workflow_id"); err != nil {
		return event, err
	}

	if event.StageID, err = scopeQuery(c, "stage_id"); err != nil {
		return event, err
	}

	return event, nil
}

func scopeQuery(c fiber.Ctx, name string) (models.Scope, error) {
	raw := c.Query(name)
	if raw == "" {
		return models.AnyScope(), nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return models.AnyScope(), errInvalidQuery(name)
	}

	return models.ExactScope(id), nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string {
	return string(e) + " must be an integer"
}
