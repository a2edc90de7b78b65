// Package models defines the core domain models for step-based workflow execution.
package models

import (
	"errors"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a workflow schedule is not a valid cron expression.
var ErrInvalidSchedule = errors.New("invalid schedule expression")

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// Workflow represents a named, ordered sequence of typed steps owned by a user.
// Only active workflows with at least one active step may be executed.
type Workflow struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"           validate:"required"`
	Name        string          `json:"name"               validate:"required,min=3"`
	Description string          `json:"description"`
	Status      WorkflowStatus  `json:"status"             validate:"required"`
	Public      bool            `json:"public"`
	Schedule    string          `json:"schedule,omitempty"` // optional cron expression
	Steps       []*WorkflowStep `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ActiveSteps returns the workflow's active steps sorted by ascending step order.
func (w *Workflow) ActiveSteps() []*WorkflowStep {
	steps := make([]*WorkflowStep, 0, len(w.Steps))

	for _, step := range w.Steps {
		if step.Active {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})

	return steps
}

// Validate checks workflow-level invariants that struct tags cannot express.
func (w *Workflow) Validate() error {
	if w.Schedule == "" {
		return nil
	}

	if _, err := cron.ParseStandard(w.Schedule); err != nil {
		return ErrInvalidSchedule
	}

	return nil
}
