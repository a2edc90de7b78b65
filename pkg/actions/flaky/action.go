// Package flaky provides a test action that fails a configurable number of
// times before succeeding. It exists to exercise retry behavior end to end.
package flaky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/ratelimit"
)

// ErrFlakyFailure is the deliberate failure emitted while the counter is
// below fail_times.
var ErrFlakyFailure = errors.New("flaky action failing as configured")

// counterTTL bounds how long attempt counters live. Long enough for any
// realistic retry schedule, short enough not to accumulate.
const counterTTL = time.Hour

// Action fails its first fail_times attempts and succeeds afterwards. The
// attempt count lives in a counter store keyed by execution, because the
// engine creates a fresh action instance for every attempt.
type Action struct {
	FailTimes int
	Key       string
	Output    map[string]any

	counters ratelimit.CounterStore
}

func NewAction(config map[string]any, counters ratelimit.CounterStore) *Action {
	failTimes := 0
	if v, ok := config["fail_times"].(float64); ok {
		failTimes = int(v)
	}

	key, _ := config["key"].(string)
	if key == "" {
		key = "default"
	}

	output, _ := config["output"].(map[string]any)

	return &Action{
		FailTimes: failTimes,
		Key:       key,
		Output:    output,
		counters:  counters,
	}
}

func (a *Action) Execute(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "flaky_action")

	key := "flaky:" + runCtx.ExecutionID + ":" + a.Key

	attempt, err := a.counters.Incr(ctx, key, counterTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}

	if attempt <= int64(a.FailTimes) {
		logger.InfoContext(ctx, "Failing on purpose", "attempt", attempt, "fail_times", a.FailTimes)

		return nil, fmt.Errorf("%w: attempt %d of %d", ErrFlakyFailure, attempt, a.FailTimes)
	}

	output := make(map[string]any, len(a.Output)+1)
	maps.Copy(output, a.Output)
	output["succeeded_after"] = attempt

	logger.InfoContext(ctx, "Succeeding", "attempt", attempt)

	return output, nil
}
