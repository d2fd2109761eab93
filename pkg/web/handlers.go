// Package web exposes the engine's execution lifecycle over HTTP. Handlers
// are thin consumers of the engine public API; no scheduling logic lives
// here.
package web

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/loomworks/loom/pkg/engine"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/models"
)

type APIHandlers struct {
	engine   *engine.Engine
	index    *execindex.Index
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPIHandlers(eng *engine.Engine, index *execindex.Index, validate *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		engine:   eng,
		index:    index,
		validate: validate,
		logger:   logger.With("module", "web"),
	}
}

// StartExecution handles POST /executions.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := h.engine.Start(c.Context(), req.Workflow, req.Input, engine.StartOptions{
		UserID: req.UserID,
		Locale: req.Locale,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(state)
}

// ListExecutions handles GET /executions. A user_id query scopes the listing
// to that user; without one, all active executions are returned.
func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.JSON(h.index.GetActive())
	}

	query := execindex.Query{}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		query.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "invalid limit")
		}

		query.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "invalid offset")
		}

		query.Offset = offset
	}

	return c.JSON(h.index.GetByUser(userID, query))
}

// GetExecution handles GET /executions/:id, returning the index entry.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	entry, err := h.index.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "execution not found")
	}

	return c.JSON(entry)
}

// GetExecutionState handles GET /executions/:id/state, returning the full
// execution state.
func (h *APIHandlers) GetExecutionState(c fiber.Ctx) error {
	state, err := h.engine.GetState(c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

// PauseExecution handles POST /executions/:id/pause.
func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	var req PauseExecutionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	state, err := h.engine.Pause(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

// ResumeExecution handles POST /executions/:id/resume.
func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req ResumeExecutionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	state, err := h.engine.Resume(c.Context(), c.Params("id"), req.Data, engine.ResumeOptions{
		Definition: req.Workflow,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

// CancelExecution handles POST /executions/:id/cancel.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	state, err := h.engine.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

// GetPendingCheckpoints handles GET /checkpoints/pending: every execution
// currently waiting on human input.
func (h *APIHandlers) GetPendingCheckpoints(c fiber.Ctx) error {
	return c.JSON(h.index.GetPendingCheckpoints())
}
