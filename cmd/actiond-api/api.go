// Package main provides the actiond HTTP API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/actiond/pkg/cmd"
	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger    *slog.Logger
	services  *cmd.Services
	publisher eventbus.EventPublisher
	validate  *validator.Validate
}

// NewAPI builds the server. A nil publisher makes /triggers/fire dispatch in
// this process.
func NewAPI(
	logger *slog.Logger,
	services *cmd.Services,
	publisher eventbus.EventPublisher,
) *API {
	return &API{
		logger:    logger,
		services:  services,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(web.Dependencies{
		Definitions: a.services.Definitions,
		Mappings:    a.services.Mappings,
		Executions:  a.services.Executions,
		Triggers:    a.services.Triggers,
		Registry:    a.services.Registry,
		Health:      a.services.Persistence,
		Publisher:   a.publisher,
		Validator:   a.validate,
		Logger:      a.logger,
	})

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.MetricsMiddleware())

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("actiond API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Start(ctx context.Context, port int) error {
	return a.App().Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		GracefulContext: ctx,
		ShutdownTimeout: shutdownTimeout,
	})
}
