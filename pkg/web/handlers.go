// Package web provides HTTP handlers and REST API endpoints for action
// definitions, trigger mappings and the execution ledger.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/registry"
	"github.com/dukex/actiond/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// HealthChecker is satisfied by persistence.Persistence.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies wires the handlers. Publisher is optional: when set, fired
// triggers go to the event bus for a dispatcher process instead of being run
// in this process.
type Dependencies struct {
	Definitions *services.ActionDefinition
	Mappings    *services.TriggerMapping
	Executions  *services.ActionExecution
	Triggers    *services.ActionTrigger
	Registry    *registry.Registry
	Health      HealthChecker
	Publisher   eventbus.EventPublisher
	Validator   *validator.Validate
	Logger      *slog.Logger
}

type APIHandlers struct {
	definitions *services.ActionDefinition
	mappings    *services.TriggerMapping
	executions  *services.ActionExecution
	triggers    *services.ActionTrigger
	registry    *registry.Registry
	health      HealthChecker
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	v := deps.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandlers{
		definitions: deps.Definitions,
		mappings:    deps.Mappings,
		executions:  deps.Executions,
		triggers:    deps.Triggers,
		registry:    deps.Registry,
		health:      deps.Health,
		publisher:   deps.Publisher,
		validator:   v,
		logger:      logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checkers := fiber.Map{}
	healthy := true

	if h.health != nil {
		if err := h.health.HealthCheck(c.Context()); err != nil {
			checkers["persistence"] = err.Error()
			healthy = false
		} else {
			checkers["persistence"] = "ok"
		}
	}

	if err := h.registry.HealthCheck(c.Context()); err != nil {
		checkers["registry"] = err.Error()
		healthy = false
	} else {
		checkers["registry"] = "ok"
	}

	status := "unhealthy"
	message := "actiond API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if healthy {
		status = "healthy"
		message = "actiond API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListActionTypes(c fiber.Ctx) error {
	factories := h.registry.Factories()

	types := make([]ActionTypeResponse, 0, len(factories))
	for _, factory := range factories {
		types = append(types, TransformActionType(factory))
	}

	return c.JSON(fiber.Map{"action_types": types})
}

// parseID reads a positive integer path parameter.
func parseID(c fiber.Ctx, name string) (int64, error) {
	raw := c.Params(name)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}

	return id, nil
}

// userID reads the acting user from UserIDHeader; a missing header is nil.
func userID(c fiber.Ctx) (*int64, error) {
	raw := strings.TrimSpace(c.Get(UserIDHeader))
	if raw == "" {
		return nil, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New(UserIDHeader + " must be an integer")
	}

	return &id, nil
}

func queryInt(c fiber.Ctx, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}

	return v, nil
}
