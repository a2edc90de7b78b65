package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/steplinehq/stepline/pkg/ratelimit"
)

// NewRateLimiter builds the per-owner run budget. With a Redis URL the budget
// is shared across API replicas; without one each process counts alone. A
// non-positive limit disables the budget entirely.
func NewRateLimiter(ctx context.Context, redisURL string, limit int64, window time.Duration, logger *slog.Logger) *ratelimit.Limiter {
	if limit <= 0 {
		return nil
	}

	var store ratelimit.CounterStore = ratelimit.NewMemoryCounterStore()

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(fmt.Errorf("invalid Redis URL: %w", err))
		}

		redisStore, err := ratelimit.NewRedisCounterStore(ctx, opts.Addr, opts.Password, opts.DB, logger)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis counter store: %w", err))
		}

		store = redisStore
	}

	return ratelimit.NewLimiter(store, limit, window, logger)
}
