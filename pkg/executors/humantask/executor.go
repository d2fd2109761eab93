package humantask

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// HumanTaskExecutor pauses the run until a person answers. The engine
// persists the checkpoint and surfaces it through the execution index; once
// Resume merges the response under the configured key, the re-entered node
// completes with that response as its output.
type HumanTaskExecutor struct {
	prompt      string
	fields      []any
	reason      string
	responseKey string
}

func NewHumanTaskExecutor(config map[string]any) (*HumanTaskExecutor, error) {
	prompt, ok := config["prompt"].(string)
	if !ok {
		return nil, errors.New("missing required field 'prompt'")
	}

	e := &HumanTaskExecutor{prompt: prompt, reason: "human_task", responseKey: "human_response"}

	if fields, ok := config["fields"].([]any); ok {
		e.fields = fields
	}

	if reason, ok := config["reason"].(string); ok && reason != "" {
		e.reason = reason
	}

	if key, ok := config["response_key"].(string); ok && key != "" {
		e.responseKey = key
	}

	return e, nil
}

func (e *HumanTaskExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	if response, ok := ectx.Input[e.responseKey]; ok && response != nil {
		return &models.ExecutorResult{
			Output: response,
		}, nil
	}

	rendered, err := template.RenderWithContext(e.prompt, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt template: %w", err)
	}

	checkpoint := map[string]any{
		"type":    "human_task",
		"node_id": node.ID,
		"prompt":  fmt.Sprintf("%v", rendered),
	}

	if len(e.fields) > 0 {
		checkpoint["fields"] = e.fields
	}

	return &models.ExecutorResult{
		Status:      models.ResultStatusPaused,
		PauseReason: e.reason,
		Checkpoint:  checkpoint,
	}, nil
}
