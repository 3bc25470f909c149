package web

import (
	"github.com/dukex/actiond/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) CreateMapping(c fiber.Ctx) error {
	var req services.SaveMappingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	req.UserID = user

	created, err := h.mappings.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetMapping(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	mapping, err := h.mappings.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(mapping)
}

func (h *APIHandlers) UpdateMapping(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req services.SaveMappingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.UserID, err = userID(c); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.mappings.Update(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteMapping(c fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.mappings.Delete(c.Context(), id, user); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetMappingStatus(c fiber.Ctx) error {
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

	mapping, err := h.mappings.SetStatus(c.Context(), id, *req.IsEnabled, user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(mapping)
}
