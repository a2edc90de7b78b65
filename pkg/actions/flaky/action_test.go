package flaky_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplinehq/stepline/pkg/actions/flaky"
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/ratelimit"
)

func TestActionFailsThenSucceeds(t *testing.T) {
	t.Parallel()

	counters := ratelimit.NewMemoryCounterStore()
	factory := flaky.NewActionFactory(counters)
	runCtx := models.NewRunContext("exec-1", "wf-1", nil)
	config := map[string]any{
		"fail_times": 2.0,
		"output":     map[string]any{"status": "done"},
	}

	// Each attempt uses a fresh instance, the way the engine creates them.
	for attempt := 1; attempt <= 2; attempt++ {
		action, err := factory.Create(config)
		require.NoError(t, err)

		_, err = action.Execute(context.Background(), *runCtx, slog.Default())
		require.ErrorIs(t, err, flaky.ErrFlakyFailure)
	}

	action, err := factory.Create(config)
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), *runCtx, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(3), output["succeeded_after"])
	assert.Equal(t, "done", output["status"])
}

func TestActionSucceedsImmediatelyByDefault(t *testing.T) {
	t.Parallel()

	action := flaky.NewAction(nil, ratelimit.NewMemoryCounterStore())
	runCtx := models.NewRunContext("exec-1", "wf-1", nil)

	output, err := action.Execute(context.Background(), *runCtx, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(1), output["succeeded_after"])
}

func TestActionCountersAreScopedToExecution(t *testing.T) {
	t.Parallel()

	counters := ratelimit.NewMemoryCounterStore()
	config := map[string]any{"fail_times": 1.0}

	first := flaky.NewAction(config, counters)
	firstCtx := models.NewRunContext("exec-1", "wf-1", nil)

	_, err := first.Execute(context.Background(), *firstCtx, slog.Default())
	require.ErrorIs(t, err, flaky.ErrFlakyFailure)

	// A different execution starts from a clean counter.
	second := flaky.NewAction(config, counters)
	secondCtx := models.NewRunContext("exec-2", "wf-1", nil)

	_, err = second.Execute(context.Background(), *secondCtx, slog.Default())
	require.ErrorIs(t, err, flaky.ErrFlakyFailure)
}

func TestFactorySchema(t *testing.T) {
	t.Parallel()

	factory := flaky.NewActionFactory(ratelimit.NewMemoryCounterStore())
	assert.Equal(t, "flaky", factory.ID())
	assert.Equal(t, "object", factory.Schema()["type"])
}
