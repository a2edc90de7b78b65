// Package events defines event types and structures for workflow run
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the stream all workflow events are published on.
const Topic = "stepline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run requests, consumed by workers.
	WorkflowRunRequestedEvent EventType = "workflow.run.requested"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	StepFailedEvent         EventType = "step.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// WorkflowRunRequested asks a worker to run the workflow with the given
// parameters.
type WorkflowRunRequested struct {
	BaseEvent

	OwnerID string         `json:"owner_id"`
	Params  map[string]any `json:"params,omitempty"`
}

func (w WorkflowRunRequested) GetType() EventType {
	return WorkflowRunRequestedEvent
}

// Execution lifecycle events

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	WorkflowName string         `json:"workflow_name"`
	Params       map[string]any `json:"params,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	Status         string `json:"status"`
	CompletedSteps int    `json:"completed_steps"`
	FailedSteps    int    `json:"failed_steps"`
	DurationMs     int64  `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	Status         string `json:"status"`
	Error          string `json:"error"`
	CompletedSteps int    `json:"completed_steps"`
	FailedSteps    int    `json:"failed_steps"`
	DurationMs     int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// StepFailed reports one step exhausting its retries within a run. The run
// itself keeps going; the event exists for monitoring and alerting.
type StepFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	StepName    string `json:"step_name"`
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
}

func (s StepFailed) GetType() EventType {
	return StepFailedEvent
}
