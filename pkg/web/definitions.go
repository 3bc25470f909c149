package web

import (
	"github.com/dukex/actiond/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) SearchDefinitions(c fiber.Ctx) error {
	var req services.SearchDefinitionsRequest
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	page, err := h.definitions.Search(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(page)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req services.SaveDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	req.UserID = user

	created, err := h.definitions.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitions.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req services.SaveDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.UserID, err = userID(c); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.Update(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

// DeleteDefinition soft-deletes; history rows keep pointing at it.
func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.definitions.Delete(c.Context(), id, user); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetDefinitionStatus(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req SetStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitions.SetStatus(c.Context(), id, *req.IsEnabled, user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) BatchSetDefinitionStatus(c fiber.Ctx) error {
	var req BatchSetStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.BatchSetStatus(c.Context(), req.IDs, *req.IsEnabled, user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

// TestDefinition runs the definition once, even when disabled, and records
// the attempt as a test execution.
func (h *APIHandlers) TestDefinition(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req TestActionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executions.TestExecute(c.Context(), id, req.ContextData, user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListDefinitionMappings(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	mappings, err := h.mappings.ListByDefinition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"mappings": mappings, "count": len(mappings)})
}
