package models

// WorkflowRef is the minimal workflow reference embedded in run results.
type WorkflowRef struct {
	ID string `json:"id"`
}

// ExecutionSummary is the shape returned to the run entrypoint caller.
// Status is "completed" or "failed".
type ExecutionSummary struct {
	ExecutionID    string      `json:"execution_id"`
	Status         string      `json:"status"`
	Workflow       WorkflowRef `json:"workflow"`
	CompletedSteps int         `json:"completed_steps"`
	FailedSteps    int         `json:"failed_steps"`
}

const (
	SummaryStatusCompleted = "completed"
	SummaryStatusFailed    = "failed"
)

// Summary renders the execution into its caller-facing summary form.
func (e *WorkflowExecution) Summary() *ExecutionSummary {
	status := SummaryStatusFailed
	if e.Status == ExecutionStatusCompleted {
		status = SummaryStatusCompleted
	}

	return &ExecutionSummary{
		ExecutionID:    e.ID,
		Status:         status,
		Workflow:       WorkflowRef{ID: e.WorkflowID},
		CompletedSteps: e.CompletedSteps,
		FailedSteps:    e.FailedSteps,
	}
}
