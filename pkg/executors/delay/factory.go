// Package delay provides the timed wait executor.
package delay

import (
	"context"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates DelayExecutor instances.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, config map[string]any) (protocol.Executor, error) {
	return NewDelayExecutor(config)
}

func (f *Factory) ID() string {
	return "delay"
}

func (f *Factory) Name() string {
	return "Delay"
}

func (f *Factory) Description() string {
	return "Waits for the configured duration before completing. Cancellation and node timeouts interrupt the wait."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "number",
				"description": "How long to wait, in milliseconds",
				"minimum":     0,
			},
		},
		"required": []string{"duration_ms"},
	}
}
