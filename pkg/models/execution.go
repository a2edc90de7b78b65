package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the lifecycle state of a workflow execution.
// Terminal states are immutable and no state regresses.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ErrInvalidTransition is returned when an execution status change would
// regress or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid execution status transition")

// StepStatus is the outcome status of a single executed step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
)

// StepResult is the persisted outcome of one step within an execution.
type StepResult struct {
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	DurationMs int64          `json:"duration_ms"`
}

// WorkflowExecution is the record of one workflow run.
type WorkflowExecution struct {
	ID             string                `json:"id"`
	WorkflowID     string                `json:"workflow_id"`
	Status         ExecutionStatus       `json:"status"`
	Params         map[string]any        `json:"params,omitempty"`
	StepResults    map[string]StepResult `json:"step_results"`
	CompletedSteps int                   `json:"completed_steps"`
	FailedSteps    int                   `json:"failed_steps"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// NewWorkflowExecution creates a pending execution record for one run of the
// given workflow, seeded with the caller-supplied parameters.
func NewWorkflowExecution(workflowID string, params map[string]any) *WorkflowExecution {
	return &WorkflowExecution{
		ID:          generateExecutionID(),
		WorkflowID:  workflowID,
		Status:      ExecutionStatusPending,
		Params:      params,
		StepResults: make(map[string]StepResult),
		CreatedAt:   time.Now().UTC(),
	}
}

// Start transitions the execution from pending to running.
func (e *WorkflowExecution) Start(now time.Time) error {
	if e.Status != ExecutionStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, ExecutionStatusRunning)
	}

	e.Status = ExecutionStatusRunning
	e.StartedAt = now

	return nil
}

// Finalize moves a running execution into a terminal state. Finalized
// executions cannot be finalized again.
func (e *WorkflowExecution) Finalize(status ExecutionStatus, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	if e.Status.Terminal() {
		return fmt.Errorf("%w: already %s", ErrInvalidTransition, e.Status)
	}

	e.Status = status
	e.CompletedAt = &now

	return nil
}

// RecordStepResult stores the outcome for a step and updates the aggregate
// counters. Recording the same step twice replaces its result.
func (e *WorkflowExecution) RecordStepResult(stepID string, result StepResult) {
	if e.StepResults == nil {
		e.StepResults = make(map[string]StepResult)
	}

	if previous, ok := e.StepResults[stepID]; ok {
		e.uncount(previous.Status)
	}

	e.StepResults[stepID] = result
	e.count(result.Status)
}

func (e *WorkflowExecution) count(status StepStatus) {
	if status == StepStatusSuccess {
		e.CompletedSteps++
	} else {
		e.FailedSteps++
	}
}

func (e *WorkflowExecution) uncount(status StepStatus) {
	if status == StepStatusSuccess {
		e.CompletedSteps--
	} else {
		e.FailedSteps--
	}
}

func generateExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}
