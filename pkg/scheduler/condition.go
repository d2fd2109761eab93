package scheduler

import (
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// evaluateCondition renders an edge condition against the source node's
// result and the execution's data, then interprets the rendered value as a
// boolean.
func evaluateCondition(condition string, result *models.ExecutorResult, state *models.ExecutionState) (bool, error) {
	data := map[string]any{}

	if result != nil {
		data["output"] = result.Output
		data["status"] = result.Status
		data["workflow_status"] = result.WorkflowStatus
	}

	if state != nil {
		data["data"] = state.Data
		data["node_results"] = state.NodeResults()
	}

	rendered, err := template.Render(condition, data)
	if err != nil {
		return false, err
	}

	return template.AsBool(rendered)
}
