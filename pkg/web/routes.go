package web

import (
	"errors"
	"time"

	"github.com/dukex/actiond/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// RegisterRoutes mounts every API endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	t := router.Group("/triggers")
	t.Post("/fire", h.FireTrigger)
	t.Post("/dispatch", h.DispatchTrigger)
	t.Get("/resolve", h.ResolveTrigger)

	d := router.Group("/action-definitions")
	d.Get("/", h.SearchDefinitions)
	d.Post("/", h.CreateDefinition)
	d.Post("/batch-status", h.BatchSetDefinitionStatus)
	d.Get("/:id", h.GetDefinition)
	d.Put("/:id", h.UpdateDefinition)
	d.Delete("/:id", h.DeleteDefinition)
	d.Patch("/:id/status", h.SetDefinitionStatus)
	d.Post("/:id/test", h.TestDefinition)
	d.Get("/:id/mappings", h.ListDefinitionMappings)

	m := router.Group("/trigger-mappings")
	m.Post("/", h.CreateMapping)
	m.Get("/:id", h.GetMapping)
	m.Put("/:id", h.UpdateMapping)
	m.Delete("/:id", h.DeleteMapping)
	m.Patch("/:id/status", h.SetMappingStatus)

	e := router.Group("/action-executions")
	e.Get("/", h.ListExecutions)
	e.Get("/stats", h.ExecutionStats)
	e.Get("/failed", h.FailedExecutions)
	e.Get("/:executionId", h.GetExecution)
	e.Post("/:executionId/retry", h.RetryExecution)
	e.Post("/:executionId/cancel", h.CancelExecution)

	router.Get("/action-types", h.ListActionTypes)
	router.Get("/health", h.HealthCheck)
	router.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

// MetricsMiddleware records every request under its route pattern, so
// /action-definitions/7 and /action-definitions/8 share one series.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			}
		}

		metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))

		return err
	}
}
