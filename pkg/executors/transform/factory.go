// Package transform provides the data transformation executor.
package transform

import (
	"context"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates TransformExecutor instances.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, config map[string]any) (protocol.Executor, error) {
	return NewTransformExecutor(config)
}

func (f *Factory) ID() string {
	return "transform"
}

func (f *Factory) Name() string {
	return "Transform"
}

func (f *Factory) Description() string {
	return "Transforms execution data using Go template expressions, producing structured output"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression evaluated against the execution context. JSON-shaped output is decoded into structured data.",
				"examples": []string{
					`{"user": "{{.input.name}}", "at": "{{now}}"}`,
					`{{.node_results.fetch.output.body}}`,
				},
			},
			"state_key": map[string]any{
				"type":        "string",
				"description": "Optional state data key to store the transformed value under",
			},
		},
		"required": []string{"expression"},
	}
}
