package web

import (
	"github.com/dukex/actiond/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	var req services.ListExecutionsRequest
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	page, err := h.executions.ListExecutions(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(page)
}

func (h *APIHandlers) ExecutionStats(c fiber.Ctx) error {
	days, err := queryInt(c, "days", services.DefaultStatisticsDays)
	if err != nil {
		return badRequest(c, err.Error())
	}

	stats, err := h.executions.Statistics(c.Context(), days)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"since":               stats.Since,
		"total":               stats.Total,
		"by_status":           stats.ByStatus,
		"average_duration_ms": stats.AverageDurationMs,
		"success_rate":        stats.SuccessRate(),
	})
}

// FailedExecutions lists the rows the retry scheduler would pick up.
func (h *APIHandlers) FailedExecutions(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}

	failed, err := h.executions.GetFailedExecutions(c.Context(), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"items": failed, "count": len(failed)})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.GetExecution(c.Context(), c.Params("executionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// RetryExecution appends a new attempt; the source row is not touched.
func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executions.Retry(c.Context(), c.Params("executionId"), user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executions.Cancel(c.Context(), c.Params("executionId"), user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}
