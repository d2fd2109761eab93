package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/loomworks/loom/pkg/engine"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("invalid_state").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps coded engine errors onto RFC 7807 responses.
func handleEngineError(c fiber.Ctx, err error) error {
	var engineErr *engine.Error
	if !errors.As(err, &engineErr) {
		return internalError(c, err)
	}

	switch engineErr.Code {
	case engine.CodeValidation:
		return badRequest(c, engineErr.Message)
	case engine.CodeExecutionNotFound:
		return notFound(c, engineErr.Message)
	case engine.CodeInvalidStateForPause, engine.CodeInvalidStateForResume:
		return conflict(c, engineErr.Message)
	default:
		return internalError(c, err)
	}
}
