package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Limiter enforces a fixed-window limit per key. When the counter store is
// unreachable the limiter fails open: blocking every caller on a counter
// outage is worse than briefly not limiting.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(store CounterStore, limit int64, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger.With("module", "ratelimit"),
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) bool {
	count, err := l.store.Incr(ctx, "ratelimit:"+key, l.window)
	if err != nil {
		l.logger.WarnContext(ctx, "Counter store unavailable, allowing request", "error", err, "key", key)

		return true
	}

	return count <= l.limit
}
