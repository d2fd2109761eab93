// Package humantask provides the human checkpoint executor, which suspends
// an execution until a person supplies the requested input.
package humantask

import (
	"context"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates HumanTaskExecutor instances.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, config map[string]any) (protocol.Executor, error) {
	return NewHumanTaskExecutor(config)
}

func (f *Factory) ID() string {
	return "humantask"
}

func (f *Factory) Name() string {
	return "Human Task"
}

func (f *Factory) Description() string {
	return "Pauses the execution and records a pending checkpoint describing the input a person must provide before the run resumes"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt shown to the user. Supports templating with execution context data.",
				"examples":    []string{"Approve refund of {{.input.amount}} for order {{.input.order_id}}?"},
			},
			"fields": map[string]any{
				"type":        "array",
				"description": "Field descriptors for the input the user must supply",
				"items":       map[string]any{"type": "object"},
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Short machine-readable pause reason",
				"default":     "human_task",
			},
			"response_key": map[string]any{
				"type":        "string",
				"description": "State data key the resume response arrives under",
				"default":     "human_response",
			},
		},
		"required": []string{"prompt"},
	}
}
