package end

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
)

// EndExecutor reports completion. The engine reads WorkflowStatus and
// OutputVariables off the result to stamp the terminal label and project the
// final output from state data.
type EndExecutor struct {
	workflowStatus  string
	outputVariables []string
}

func NewEndExecutor(config map[string]any) (*EndExecutor, error) {
	e := &EndExecutor{}

	if status, ok := config["workflow_status"].(string); ok {
		e.workflowStatus = status
	}

	if vars, ok := config["output_variables"].([]any); ok {
		for _, v := range vars {
			if name, ok := v.(string); ok {
				e.outputVariables = append(e.outputVariables, name)
			}
		}
	}

	return e, nil
}

func (e *EndExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	return &models.ExecutorResult{
		WorkflowStatus:  e.workflowStatus,
		OutputVariables: e.outputVariables,
	}, nil
}
