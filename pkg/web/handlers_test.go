package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/loomworks/loom/pkg/engine"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	logger := slog.Default()
	root := t.TempDir()

	store := statestore.NewStore(root, logger)
	index := execindex.NewIndex(root, logger)
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaults()

	eng := engine.NewEngine(store, index, reg, nil, logger, engine.Options{})

	handlers := NewAPIHandlers(eng, index, validator.New(validator.WithRequiredStructEnabled()), logger)

	app := fiber.New()

	e := app.Group("/executions")
	e.Post("/", handlers.StartExecution)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/state", handlers.GetExecutionState)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/checkpoints/pending", handlers.GetPendingCheckpoints)

	return app, eng
}

func linearWorkflow() map[string]any {
	return map[string]any{
		"id":   "wf-web",
		"name": "web linear",
		"nodes": []map[string]any{
			{"id": "prepare", "type": "transform", "category": "entry", "config": map[string]any{
				"expression": "hello {{.input.name}}",
				"state_key":  "greeting",
			}},
			{"id": "finish", "type": "end", "config": map[string]any{
				"output_variables": []string{"greeting"},
			}},
		},
		"edges": []map[string]any{
			{"from": "prepare", "to": "finish"},
		},
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	return decoded
}

func TestStartExecution_ReturnsCreatedState(t *testing.T) {
	app, eng := newTestApp(t)

	resp := postJSON(t, app, "/executions/", map[string]any{
		"workflow": linearWorkflow(),
		"input":    map[string]any{"name": "ada"},
		"user_id":  "u-1",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	executionID, ok := body["execution_id"].(string)
	require.True(t, ok)
	assert.Equal(t, "wf-web", body["workflow_id"])

	require.Eventually(t, func() bool {
		state, err := eng.GetState(executionID)

		return err == nil && state.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartExecution_RejectsMissingWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/executions/", map[string]any{
		"input": map[string]any{"name": "ada"},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartExecution_RejectsCyclicWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	workflow := map[string]any{
		"id":   "wf-cycle",
		"name": "cycle via api",
		"nodes": []map[string]any{
			{"id": "a", "type": "transform", "category": "entry", "config": map[string]any{"expression": "x"}},
			{"id": "b", "type": "transform", "config": map[string]any{"expression": "y"}},
		},
		"edges": []map[string]any{
			{"from": "a", "to": "b"},
			{"from": "b", "to": "a"},
		},
	}

	resp := postJSON(t, app, "/executions/", map[string]any{"workflow": workflow})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "validation_error", body["type"])
}

func TestGetExecutionState_NotFound(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/exec-missing/state", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelExecution_Conflict404AndIdempotency(t *testing.T) {
	app, eng := newTestApp(t)

	workflow := map[string]any{
		"id":   "wf-cancel-web",
		"name": "cancel via api",
		"nodes": []map[string]any{
			{"id": "wait", "type": "delay", "category": "entry", "config": map[string]any{"duration_ms": 10000}},
		},
	}

	resp := postJSON(t, app, "/executions/", map[string]any{"workflow": workflow})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	executionID := decodeBody(t, resp)["execution_id"].(string)

	require.Eventually(t, func() bool {
		state, err := eng.GetState(executionID)

		return err == nil && state.Status == models.ExecutionStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancelResp := postJSON(t, app, "/executions/"+executionID+"/cancel", map[string]any{"reason": "test"})
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)
	assert.Equal(t, string(models.ExecutionStatusCancelled), decodeBody(t, cancelResp)["status"])

	// Cancelling again returns the terminal state, not an error.
	again := postJSON(t, app, "/executions/"+executionID+"/cancel", map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusOK, again.StatusCode)
}

func TestPendingCheckpoints_ListsPausedExecution(t *testing.T) {
	app, eng := newTestApp(t)

	workflow := map[string]any{
		"id":   "wf-human-web",
		"name": "human via api",
		"nodes": []map[string]any{
			{"id": "review", "type": "humantask", "category": "entry", "config": map[string]any{"prompt": "Approve?"}},
			{"id": "finish", "type": "end", "config": map[string]any{"output_variables": []string{"human_response"}}},
		},
		"edges": []map[string]any{
			{"from": "review", "to": "finish"},
		},
	}

	resp := postJSON(t, app, "/executions/", map[string]any{"workflow": workflow, "user_id": "u-9"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	executionID := decodeBody(t, resp)["execution_id"].(string)

	require.Eventually(t, func() bool {
		state, err := eng.GetState(executionID)

		return err == nil && state.Status == models.ExecutionStatusPaused
	}, 5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/checkpoints/pending", nil)

	listResp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	raw, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)

	var pending []map[string]any
	require.NoError(t, json.Unmarshal(raw, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, executionID, pending[0]["execution_id"])

	resumeResp := postJSON(t, app, "/executions/"+executionID+"/resume", map[string]any{
		"data": map[string]any{"human_response": "yes"},
	})
	require.Equal(t, http.StatusOK, resumeResp.StatusCode)

	require.Eventually(t, func() bool {
		state, err := eng.GetState(executionID)

		return err == nil && state.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}
