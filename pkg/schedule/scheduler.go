// Package schedule turns workflow cron expressions into run-request events.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/events"
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

const defaultRefreshInterval = 30 * time.Second

type job struct {
	entryID cron.EntryID
	expr    string
}

// Scheduler keeps one cron entry per scheduled workflow and publishes a run
// request each time an entry fires. The job set is reconciled against the
// store on an interval, so schedule edits and archivals take effect without
// a restart.
type Scheduler struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration

	cron   *cron.Cron
	mu     sync.Mutex
	jobs   map[string]job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

// WithRefreshInterval overrides how often the job set is re-read.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

func NewScheduler(p persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		persistence: p,
		bus:         bus,
		logger:      logger.With("module", "scheduler"),
		interval:    defaultRefreshInterval,
		jobs:        make(map[string]job),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the initial job set, starts the cron runner, and begins the
// refresh loop. Stop shuts both down.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("initial schedule load: %w", err)
	}

	s.cron.Start()

	refreshCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)

	go s.refreshLoop(refreshCtx)

	s.logger.InfoContext(ctx, "Scheduler started",
		"jobs", s.JobCount(),
		"refresh_interval", s.interval,
	)

	return nil
}

// Stop cancels the refresh loop and waits for in-flight cron jobs, bounded
// by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.jobs = make(map[string]job)
	s.mu.Unlock()

	return nil
}

// JobCount reports how many workflows currently hold a cron entry.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.jobs)
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Failed to refresh schedules", "error", err)
			}
		}
	}
}

// Refresh reconciles cron entries against the scheduled workflows in the
// store: new schedules are added, changed expressions are replaced, and
// workflows that lost their schedule (or were archived) are removed.
func (s *Scheduler) Refresh(ctx context.Context) error {
	workflows, err := s.persistence.WorkflowRepository().ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		seen[workflow.ID] = true

		current, ok := s.jobs[workflow.ID]
		if ok && current.expr == workflow.Schedule {
			continue
		}

		if ok {
			s.cron.Remove(current.entryID)
			delete(s.jobs, workflow.ID)
		}

		if err := s.addJob(workflow); err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID,
				"schedule", workflow.Schedule,
				"error", err,
			)
		}
	}

	for workflowID, j := range s.jobs {
		if seen[workflowID] {
			continue
		}

		s.cron.Remove(j.entryID)
		delete(s.jobs, workflowID)
		s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
	}

	return nil
}

func (s *Scheduler) addJob(workflow *models.Workflow) error {
	workflowID := workflow.ID
	ownerID := workflow.OwnerID
	expr := workflow.Schedule

	entryID, err := s.cron.AddFunc(expr, func() {
		s.fire(workflowID, ownerID, expr)
	})
	if err != nil {
		return err
	}

	s.jobs[workflowID] = job{entryID: entryID, expr: expr}
	s.logger.Info("Scheduled workflow", "workflow_id", workflowID, "schedule", expr)

	return nil
}

// fire publishes one run request. Workers own the run itself, so a scheduler
// restart can never lose or duplicate an execution record.
func (s *Scheduler) fire(workflowID, ownerID, expr string) {
	ctx := context.Background()

	event := events.WorkflowRunRequested{
		BaseEvent: events.NewBaseEvent(events.WorkflowRunRequestedEvent, workflowID),
		OwnerID:   ownerID,
		Params: map[string]any{
			"scheduled_at": time.Now().UTC().Format(time.RFC3339),
			"schedule":     expr,
		},
	}

	if err := s.bus.Publish(ctx, workflowID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish run request",
			"error", err,
			"workflow_id", workflowID,
		)

		return
	}

	s.logger.InfoContext(ctx, "Requested scheduled run",
		"workflow_id", workflowID,
		"request_id", event.ID,
	)
}
