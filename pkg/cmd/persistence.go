package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/persistence/file"
	"github.com/steplinehq/stepline/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence picks the storage backend from the database URL scheme.
// Anything that is not a recognized scheme is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to PostgreSQL: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
