// Package web provides the HTTP handlers and request types for the workflow
// API. Ownership comes from the X-Owner-ID header; handlers never accept an
// owner in the payload.
package web

import (
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/services"
)

// CreateWorkflowRequest is the request body for creating a workflow, with
// optional inline step definitions.
type CreateWorkflowRequest struct {
	Name        string        `json:"name"        validate:"required,min=3"`
	Description string        `json:"description"`
	Schedule    string        `json:"schedule"`
	Public      bool          `json:"public"`
	Steps       []StepRequest `json:"steps"       validate:"omitempty,dive"`
}

// StepRequest describes one step definition when creating a workflow or
// adding a step. A nil Active defaults to true.
type StepRequest struct {
	Name       string         `json:"name"       validate:"required,min=1"`
	Action     string         `json:"action"     validate:"required"`
	StepOrder  int            `json:"step_order" validate:"gt=0"`
	Parameters map[string]any `json:"parameters"`
	Active     *bool          `json:"active"`
}

// ToModel converts the payload into a step definition, applying the active
// default.
func (r StepRequest) ToModel() *models.WorkflowStep {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.WorkflowStep{
		Name:       r.Name,
		Action:     models.ActionType(r.Action),
		StepOrder:  r.StepOrder,
		Parameters: r.Parameters,
		Active:     active,
	}
}

// UpdateWorkflowRequest is the request body for updating a workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string `json:"description,omitempty"`
	Schedule    *string `json:"schedule,omitempty"`
	Public      *bool   `json:"public,omitempty"`
}

func (r UpdateWorkflowRequest) toServiceRequest() services.UpdateWorkflowRequest {
	return services.UpdateWorkflowRequest{
		Name:        r.Name,
		Description: r.Description,
		Schedule:    r.Schedule,
		Public:      r.Public,
	}
}

// UpdateWorkflowStatusRequest is the request body for a status transition.
type UpdateWorkflowStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active archived"`
}

// UpdateStepRequest is the request body for updating a step. All fields are
// optional; Parameters, when present, replaces the step's parameters wholesale.
type UpdateStepRequest struct {
	Name       *string        `json:"name,omitempty"       validate:"omitempty,min=1"`
	Action     *string        `json:"action,omitempty"`
	StepOrder  *int           `json:"step_order,omitempty" validate:"omitempty,gt=0"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Active     *bool          `json:"active,omitempty"`
}

func (r UpdateStepRequest) toServiceRequest() services.UpdateStepRequest {
	req := services.UpdateStepRequest{
		Name:       r.Name,
		StepOrder:  r.StepOrder,
		Parameters: r.Parameters,
		Active:     r.Active,
	}

	if r.Action != nil {
		action := models.ActionType(*r.Action)
		req.Action = &action
	}

	return req
}

// RunWorkflowRequest is the request body for running or enqueueing a
// workflow. The body may be empty; params seed the execution's run context.
type RunWorkflowRequest struct {
	Params map[string]any `json:"params"`
}

// EnqueueResponse acknowledges an asynchronous run request. The id identifies
// the request, not an execution record.
type EnqueueResponse struct {
	RequestID string `json:"request_id"`
}
