package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCounterStore is a CounterStore shared across nodes.
type RedisCounterStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisCounterStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return &RedisCounterStore{
		client: client,
		logger: logger.With("module", "redis_counter_store"),
	}, nil
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	return incr.Val(), nil
}

func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}
