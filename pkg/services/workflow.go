package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Workflow implements workflow and step management on top of the
// persistence layer. All operations are scoped to the calling owner.
type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains filtering and pagination options for List.
type ListWorkflowsRequest struct {
	OwnerID string
	Status  *models.WorkflowStatus

	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

// ListWorkflowsResponse contains one page of workflows, newest first.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
	HasNextPage bool               `json:"has_next_page"`
}

// List retrieves workflows with filtering and pagination.
func (s *Workflow) List(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	const op = "ListWorkflows"

	if err := validateListRequest(op, &req); err != nil {
		return nil, err
	}

	opts := persistence.ListWorkflowsOptions{
		OwnerID: req.OwnerID,
		Status:  req.Status,
		Limit:   req.Limit + 1, // one extra row decides has_next_page
		Offset:  req.Offset,
	}

	workflows, err := s.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, NewInternalError(op, fmt.Errorf("failed to list workflows: %w", err))
	}

	hasNext := len(workflows) > req.Limit
	if hasNext {
		workflows = workflows[:req.Limit]
	}

	return &ListWorkflowsResponse{
		Workflows:   workflows,
		Limit:       req.Limit,
		Offset:      req.Offset,
		HasNextPage: hasNext,
	}, nil
}

// validateListRequest applies pagination defaults and validates filters.
func validateListRequest(op string, req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)

	if req.Status != nil && !validWorkflowStatus(*req.Status) {
		return NewValidationError(op, fmt.Sprintf("invalid status %q", *req.Status), ErrInvalidStatus)
	}

	return nil
}

// Create stores a new workflow after applying defaults: a generated id,
// draft status, and creation timestamps. Step definitions may be included
// and are validated the same way AddStep validates them.
func (s *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	const op = "CreateWorkflow"

	workflow.OwnerID = strings.TrimSpace(workflow.OwnerID)
	if workflow.OwnerID == "" {
		return nil, NewValidationError(op, "owner id is required", ErrOwnerRequired)
	}

	workflow.Name = strings.TrimSpace(workflow.Name)
	if workflow.Name == "" {
		return nil, NewValidationError(op, "workflow name is required", ErrNameRequired)
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if !validWorkflowStatus(workflow.Status) {
		return nil, NewValidationError(op, fmt.Sprintf("invalid status %q", workflow.Status), ErrInvalidStatus)
	}

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError(op, fmt.Sprintf("invalid schedule %q", workflow.Schedule), err)
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	for _, step := range workflow.Steps {
		if err := validateStep(op, step); err != nil {
			return nil, err
		}

		step.ID = uuid.New().String()
		step.WorkflowID = workflow.ID
	}

	if err := checkStepOrders(op, workflow.Steps); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, mapSaveError(op, workflow.Name, err)
	}

	return workflow, nil
}

// Fetch returns a workflow with its steps, scoped to the owner.
func (s *Workflow) Fetch(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error) {
	return s.get(ctx, "FetchWorkflow", workflowID, ownerID)
}

// UpdateWorkflowRequest carries the mutable workflow fields. Nil fields are
// left unchanged. Status changes go through UpdateStatus instead.
type UpdateWorkflowRequest struct {
	Name        *string
	Description *string
	Public      *bool
	Schedule    *string
}

// Update modifies a workflow's descriptive fields.
func (s *Workflow) Update(ctx context.Context, workflowID, ownerID string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	const op = "UpdateWorkflow"

	workflow, err := s.get(ctx, op, workflowID, ownerID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError(op, fmt.Sprintf("workflow %s is archived", workflowID), ErrWorkflowArchived)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewValidationError(op, "workflow name is required", ErrNameRequired)
		}

		workflow.Name = name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.Public != nil {
		workflow.Public = *req.Public
	}

	if req.Schedule != nil {
		workflow.Schedule = strings.TrimSpace(*req.Schedule)
	}

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError(op, fmt.Sprintf("invalid schedule %q", workflow.Schedule), err)
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, mapSaveError(op, workflow.Name, err)
	}

	return workflow, nil
}

// UpdateStatus moves a workflow between draft, active, and archived.
// Activation requires at least one active step. Archived is terminal.
// Setting the current status again is a no-op.
func (s *Workflow) UpdateStatus(ctx context.Context, workflowID, ownerID string, status models.WorkflowStatus) (*models.Workflow, error) {
	const op = "UpdateWorkflowStatus"

	if !validWorkflowStatus(status) {
		return nil, NewValidationError(op, fmt.Sprintf("invalid status %q", status), ErrInvalidStatus)
	}

	workflow, err := s.get(ctx, op, workflowID, ownerID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == status {
		return workflow, nil
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, NewInvalidStateError(op, fmt.Sprintf("workflow %s is archived", workflowID), ErrWorkflowArchived)
	}

	if status == models.WorkflowStatusActive && len(workflow.ActiveSteps()) == 0 {
		return nil, NewInvalidStateError(op, fmt.Sprintf("workflow %s has no active steps", workflowID), ErrNoActiveSteps)
	}

	workflow.Status = status
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, mapSaveError(op, workflow.Name, err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (s *Workflow) Delete(ctx context.Context, workflowID, ownerID string) error {
	const op = "DeleteWorkflow"

	if _, err := s.get(ctx, op, workflowID, ownerID); err != nil {
		return err
	}

	if err := s.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return NewInternalError(op, fmt.Errorf("failed to delete workflow %s: %w", workflowID, err))
	}

	return nil
}

// ListSteps returns the workflow's step definitions sorted by step order.
func (s *Workflow) ListSteps(ctx context.Context, workflowID, ownerID string) ([]*models.WorkflowStep, error) {
	workflow, err := s.get(ctx, "ListSteps", workflowID, ownerID)
	if err != nil {
		return nil, err
	}

	steps := slices.Clone(workflow.Steps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})

	return steps, nil
}

// AddStep appends a step definition to the workflow.
func (s *Workflow) AddStep(ctx context.Context, workflowID, ownerID string, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	const op = "AddStep"

	workflow, err := s.get(ctx, op, workflowID, ownerID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError(op, fmt.Sprintf("workflow %s is archived", workflowID), ErrWorkflowArchived)
	}

	if err := validateStep(op, step); err != nil {
		return nil, err
	}

	for _, existing := range workflow.Steps {
		if existing.StepOrder == step.StepOrder {
			return nil, NewConflictError(op,
				fmt.Sprintf("step order %d is already used by step %q", step.StepOrder, existing.Name),
				persistence.ErrDuplicateStepOrder)
		}
	}

	step.ID = uuid.New().String()
	step.WorkflowID = workflow.ID
	workflow.Steps = append(workflow.Steps, step)
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, mapSaveError(op, workflow.Name, err)
	}

	return step, nil
}

// UpdateStepRequest carries the mutable step fields. Nil fields are left
// unchanged.
type UpdateStepRequest struct {
	Name       *string
	StepOrder  *int
	Action     *models.ActionType
	Parameters map[string]any
	Active     *bool
}

// UpdateStep modifies one step definition and revalidates it.
func (s *Workflow) UpdateStep(ctx context.Context, workflowID, ownerID, stepID string, req UpdateStepRequest) (*models.WorkflowStep, error) {
	const op = "UpdateStep"

	workflow, err := s.get(ctx, op, workflowID, ownerID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError(op, fmt.Sprintf("workflow %s is archived", workflowID), ErrWorkflowArchived)
	}

	step := findStep(workflow, stepID)
	if step == nil {
		return nil, NewNotFoundError(op,
			fmt.Sprintf("step %s not found in workflow %s", stepID, workflowID),
			persistence.ErrStepNotFound)
	}

	if req.Name != nil {
		step.Name = *req.Name
	}

	if req.StepOrder != nil {
		step.StepOrder = *req.StepOrder
	}

	if req.Action != nil {
		step.Action = *req.Action
	}

	if req.Parameters != nil {
		step.Parameters = req.Parameters
	}

	if req.Active != nil {
		step.Active = *req.Active
	}

	if err := validateStep(op, step); err != nil {
		return nil, err
	}

	for _, other := range workflow.Steps {
		if other.ID != step.ID && other.StepOrder == step.StepOrder {
			return nil, NewConflictError(op,
				fmt.Sprintf("step order %d is already used by step %q", step.StepOrder, other.Name),
				persistence.ErrDuplicateStepOrder)
		}
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, mapSaveError(op, workflow.Name, err)
	}

	return step, nil
}

// RemoveStep deletes a step definition from the workflow.
func (s *Workflow) RemoveStep(ctx context.Context, workflowID, ownerID, stepID string) error {
	const op = "RemoveStep"

	workflow, err := s.get(ctx, op, workflowID, ownerID)
	if err != nil {
		return err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return NewConflictError(op, fmt.Sprintf("workflow %s is archived", workflowID), ErrWorkflowArchived)
	}

	kept := make([]*models.WorkflowStep, 0, len(workflow.Steps))
	found := false

	for _, step := range workflow.Steps {
		if step.ID == stepID {
			found = true

			continue
		}

		kept = append(kept, step)
	}

	if !found {
		return NewNotFoundError(op,
			fmt.Sprintf("step %s not found in workflow %s", stepID, workflowID),
			persistence.ErrStepNotFound)
	}

	workflow.Steps = kept
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return mapSaveError(op, workflow.Name, err)
	}

	return nil
}

// get loads a workflow with steps scoped to the owner and maps not-found
// onto a service error carrying the calling operation.
func (s *Workflow) get(ctx context.Context, op, workflowID, ownerID string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetWithSteps(ctx, workflowID, ownerID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, NewNotFoundError(op, fmt.Sprintf("workflow %s not found", workflowID), err)
		}

		return nil, NewInternalError(op, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err))
	}

	return workflow, nil
}

// validateStep checks the step invariants shared by create and update paths.
// Parameters are validated against the action's schema; whether a custom
// action is actually registered stays a run-time concern.
func validateStep(op string, step *models.WorkflowStep) error {
	step.Name = strings.TrimSpace(step.Name)
	if step.Name == "" {
		return NewValidationError(op, "step name is required", ErrStepNameRequired)
	}

	if step.StepOrder <= 0 {
		return NewValidationError(op, fmt.Sprintf("step order %d is not positive", step.StepOrder), ErrInvalidStepOrder)
	}

	if !step.Action.Known() {
		return NewValidationError(op, fmt.Sprintf("unknown action type %q", step.Action), ErrUnknownAction)
	}

	if _, err := models.DecodeStepParams(step); err != nil {
		return NewValidationError(op, fmt.Sprintf("invalid parameters for step %q: %v", step.Name, err), err)
	}

	return nil
}

func checkStepOrders(op string, steps []*models.WorkflowStep) error {
	seen := make(map[int]string, len(steps))

	for _, step := range steps {
		if prev, ok := seen[step.StepOrder]; ok {
			return NewConflictError(op,
				fmt.Sprintf("steps %q and %q share order %d", prev, step.Name, step.StepOrder),
				persistence.ErrDuplicateStepOrder)
		}

		seen[step.StepOrder] = step.Name
	}

	return nil
}

func mapSaveError(op, name string, err error) error {
	switch {
	case persistence.IsDuplicateWorkflowName(err):
		return NewConflictError(op, fmt.Sprintf("workflow name %q is already in use", name), err)
	case persistence.IsDuplicateStepOrder(err):
		return NewConflictError(op, "step order is already in use", err)
	default:
		return NewInternalError(op, fmt.Errorf("failed to save workflow: %w", err))
	}
}

func findStep(workflow *models.Workflow, stepID string) *models.WorkflowStep {
	for _, step := range workflow.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

func validWorkflowStatus(status models.WorkflowStatus) bool {
	switch status {
	case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusArchived:
		return true
	default:
		return false
	}
}
