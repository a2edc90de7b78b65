package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/steplinehq/stepline/pkg/cmd"
	"github.com/steplinehq/stepline/pkg/log"
	"github.com/steplinehq/stepline/pkg/tracer"
)

const serviceName = "stepline-worker"

func main() {
	app := &cli.Command{
		Name:                  "stepline-worker",
		Usage:                 "Start workers to execute workflow run requests",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("STEPLINE_WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or file://)",
				Required: true,
				Sources:  cli.EnvVars("STEPLINE_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("STEPLINE_EVENT_BUS"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("STEPLINE_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("stepline-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Stepline Worker")

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

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			worker := NewWorkerManager(
				workerID,
				persistence,
				eventBus,
				logger,
				registry,
			)

			return worker.Start(ctx)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
