// Package main provides the Stepline scheduler, which turns workflow cron
// schedules into run requests on the event bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/steplinehq/stepline/pkg/cmd"
	"github.com/steplinehq/stepline/pkg/log"
	"github.com/steplinehq/stepline/pkg/schedule"
	"github.com/steplinehq/stepline/pkg/tracer"
)

const (
	serviceName     = "stepline-scheduler"
	shutdownTimeout = 10 * time.Second
)

func main() {
	app := &cli.Command{
		Name:                  "stepline-scheduler",
		Usage:                 "Request workflow runs on their cron schedules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
			&cli.DurationFlag{
				Name:    "refresh-interval",
				Usage:   "How often to reconcile cron entries against the store",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("STEPLINE_REFRESH_INTERVAL"),
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

			logger := log.WithModule("stepline-scheduler")

			logger.InfoContext(ctx, "Initializing Stepline Scheduler")

			tracerProvider, err := tracer.InitTracer(ctx, serviceName)
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

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

			scheduler := schedule.NewScheduler(
				persistence,
				eventBus,
				logger,
				schedule.WithRefreshInterval(command.Duration("refresh-interval")),
			)

			if err := scheduler.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			logger.InfoContext(ctx, "Scheduler started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler...")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return scheduler.Stop(stopCtx)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
