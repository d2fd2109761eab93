package transform

import (
	"context"
	"errors"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// TransformExecutor renders a template expression against the execution
// context and returns the result as the node output.
type TransformExecutor struct {
	expression string
	stateKey   string
}

func NewTransformExecutor(config map[string]any) (*TransformExecutor, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	stateKey, _ := config["state_key"].(string)

	return &TransformExecutor{expression: expression, stateKey: stateKey}, nil
}

func (e *TransformExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	output, err := template.RenderWithContext(e.expression, ectx)
	if err != nil {
		return nil, err
	}

	result := &models.ExecutorResult{Output: output}

	if e.stateKey != "" {
		result.StateUpdates = map[string]any{e.stateKey: output}
	}

	return result, nil
}
