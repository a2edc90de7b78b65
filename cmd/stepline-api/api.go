// Package main provides the Stepline API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/ratelimit"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/services"
	"github.com/steplinehq/stepline/pkg/web"
	"github.com/steplinehq/stepline/pkg/workflow"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	limiter     *ratelimit.Limiter
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	limiter *ratelimit.Limiter,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		limiter:     limiter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	executor := workflow.NewExecutor(persistence.NewExecutionStore(a.persistence), a.registry, a.logger)
	executionService := services.NewExecution(a.persistence, executor, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.validate, a.registry, a.limiter)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepline API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// Start serves the API until the process is signalled, then drains in-flight
// requests with a deadline.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- app.Listen(":" + strconv.Itoa(port))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-sigChan:
		a.logger.InfoContext(ctx, "Shutting down API...")

		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
