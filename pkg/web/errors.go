package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/steplinehq/stepline/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func invalidState(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "invalid_state", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func conflict(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusConflict, "conflict", detail)
}

func tooManyRequests(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusTooManyRequests, "rate_limited", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleServiceError maps service layer errors onto problem documents.
// Precondition failures (workflow not active, workflow has no steps) are
// client errors, so they answer 400 rather than 500.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())
	case services.IsInvalidStateError(err):
		return invalidState(c, err.Error())
	case services.IsNotFoundError(err):
		return notFound(c, err.Error())
	case services.IsConflictError(err):
		return conflict(c, err.Error())
	case services.IsRateLimitedError(err):
		return tooManyRequests(c, err.Error())
	default:
		return internalError(c, err)
	}
}
