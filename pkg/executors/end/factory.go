// Package end provides the terminal executor that closes a workflow branch
// and shapes the execution output.
package end

import (
	"context"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates EndExecutor instances.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, config map[string]any) (protocol.Executor, error) {
	return NewEndExecutor(config)
}

func (f *Factory) ID() string {
	return "end"
}

func (f *Factory) Name() string {
	return "End"
}

func (f *Factory) Description() string {
	return "Marks the workflow as finished, optionally with a custom terminal label, and selects which state keys form the final output"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow_status": map[string]any{
				"type":        "string",
				"description": "Custom terminal label recorded alongside the completed status",
				"examples":    []string{"approved", "rejected", "needs_review"},
			},
			"output_variables": map[string]any{
				"type":        "array",
				"description": "State data keys projected into the execution output",
				"items":       map[string]any{"type": "string"},
			},
		},
	}
}
