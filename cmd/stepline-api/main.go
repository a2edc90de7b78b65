package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/steplinehq/stepline/pkg/cmd"
	"github.com/steplinehq/stepline/pkg/log"
	"github.com/steplinehq/stepline/pkg/tracer"
)

const (
	defaultPort     = 8081
	rateLimitWindow = time.Minute
	serviceName     = "stepline-api"
)

func main() {
	app := &cli.Command{
		Name:                  "stepline-api",
		Usage:                 "Create and manage workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("STEPLINE_PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or file://)",
				Required: true,
				Sources:  cli.EnvVars("STEPLINE_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("STEPLINE_EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (kafka event bus only)",
				Sources: cli.EnvVars("STEPLINE_KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("STEPLINE_PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the shared run budget (in-memory when empty)",
				Sources: cli.EnvVars("STEPLINE_REDIS_URL"),
			},
			&cli.Int64Flag{
				Name:    "run-rate-limit",
				Usage:   "Maximum synchronous runs per owner per minute (0 disables)",
				Value:   0,
				Sources: cli.EnvVars("STEPLINE_RUN_RATE_LIMIT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("STEPLINE_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Stepline API")

			tracerProvider, err := tracer.InitTracer(ctx, serviceName)
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				serviceName,
				logger,
			)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			limiter := cmd.NewRateLimiter(
				ctx,
				command.String("redis-url"),
				command.Int64("run-rate-limit"),
				rateLimitWindow,
				logger,
			)

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				limiter,
			)

			return api.Start(ctx, command.Int("port"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
