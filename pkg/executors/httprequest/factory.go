// Package httprequest provides the HTTP request executor.
package httprequest

import (
	"context"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates HTTPRequestExecutor instances.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, config map[string]any) (protocol.Executor, error) {
	return NewHTTPRequestExecutor(config)
}

func (f *Factory) ID() string {
	return "httprequest"
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request with templated URL, headers and body. Retries and timeouts come from the node execution policy."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating with execution context data.",
				"examples":    []string{"https://api.example.com/orders/{{.input.order_id}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
		},
		"required": []string{"url"},
	}
}
