package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/ratelimit"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/services"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	validator        *validator.Validate
	registry         *registry.Registry
	limiter          *ratelimit.Limiter
}

// NewAPIHandlers wires the API surface over the service layer. The limiter
// may be nil, which disables the per-owner run budget.
func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	validator *validator.Validate,
	registry *registry.Registry,
	limiter *ratelimit.Limiter,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		validator:        validator,
		registry:         registry,
		limiter:          limiter,
	}
}

// RegisterRoutes mounts every API route on app. Workflow and execution
// routes sit behind RequireOwner; health and action listing do not.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/actions", h.ListActions)

	workflows := app.Group("/workflows", RequireOwner())
	workflows.Get("/", h.ListWorkflows)
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Patch("/:id", h.UpdateWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Post("/:id/status", h.UpdateWorkflowStatus)
	workflows.Get("/:id/steps", h.ListSteps)
	workflows.Post("/:id/steps", h.AddStep)
	workflows.Patch("/:id/steps/:stepId", h.UpdateStep)
	workflows.Delete("/:id/steps/:stepId", h.DeleteStep)
	workflows.Post("/:id/run", h.RunWorkflow)
	workflows.Post("/:id/enqueue", h.EnqueueWorkflow)
	workflows.Get("/:id/executions", h.ListExecutions)

	executions := app.Group("/executions", RequireOwner())
	executions.Get("/:id", h.GetExecution)
	executions.Get("/:id/logs", h.GetExecutionLogs)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  result.Limit,
			"offset": result.Offset,
		},
	})
}

// parseListWorkflowsRequest parses the query parameters for listing
// workflows. The owner always comes from the request header.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{OwnerID: ownerID(c)}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	return req, nil
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Schedule:    req.Schedule,
		Public:      req.Public,
		OwnerID:     ownerID(c),
		Steps:       make([]*models.WorkflowStep, 0, len(req.Steps)),
	}

	for _, step := range req.Steps {
		workflow.Steps = append(workflow.Steps, step.ToModel())
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.Fetch(c.Context(), id, ownerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), id, ownerID(c), req.toServiceRequest())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id, ownerID(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) UpdateWorkflowStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.UpdateStatus(c.Context(), id, ownerID(c), models.WorkflowStatus(req.Status))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ListSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	steps, err := h.workflowService.ListSteps(c.Context(), id, ownerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.workflowService.AddStep(c.Context(), id, ownerID(c), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Workflow ID and step ID are required")
	}

	var req UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.workflowService.UpdateStep(c.Context(), id, ownerID(c), stepID, req.toServiceRequest())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Workflow ID and step ID are required")
	}

	if err := h.workflowService.RemoveStep(c.Context(), id, ownerID(c), stepID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	owner := ownerID(c)
	if h.limiter != nil && !h.limiter.Allow(c.Context(), "run:"+owner) {
		return tooManyRequests(c, "run rate limit exceeded for owner "+owner)
	}

	req, err := parseRunRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	summary, err := h.executionService.Run(c.Context(), id, owner, req.Params)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) EnqueueWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	owner := ownerID(c)
	if h.limiter != nil && !h.limiter.Allow(c.Context(), "run:"+owner) {
		return tooManyRequests(c, "run rate limit exceeded for owner "+owner)
	}

	req, err := parseRunRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	requestID, err := h.executionService.Enqueue(c.Context(), id, owner, req.Params)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(EnqueueResponse{RequestID: requestID})
}

// parseRunRequest reads the optional run payload. An empty body means no
// params.
func parseRunRequest(c fiber.Ctx) (*RunWorkflowRequest, error) {
	req := &RunWorkflowRequest{}
	if len(c.Body()) == 0 {
		return req, nil
	}

	if err := c.Bind().JSON(req); err != nil {
		return nil, err
	}

	return req, nil
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.executionService.ListByWorkflow(c.Context(), id, ownerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.Get(c.Context(), id, ownerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	logs, err := h.executionService.Logs(c.Context(), id, ownerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) ListActions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"actions": h.registry.Available()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Stepline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
