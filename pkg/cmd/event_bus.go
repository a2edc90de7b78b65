package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/steplinehq/stepline/pkg/channels/gochannel"
	"github.com/steplinehq/stepline/pkg/channels/kafka"
	"github.com/steplinehq/stepline/pkg/eventbus"
)

// NewEventBus creates the event bus for one service. Kafka consumer groups
// are derived from the service name, so replicas of a service split the
// work while distinct services each see every event.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
