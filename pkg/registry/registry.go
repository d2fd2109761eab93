// Package registry holds the executor factories a node graph can reference
// by type, plus JSON-schema validation of node configuration.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomworks/loom/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ExecutorFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.ExecutorFactory),
	}
}

func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.factories[factory.ID()] = factory
}

// Resolve looks up the factory for a node type. A miss is not wrapped here;
// the engine turns it into its own coded error.
func (r *Registry) Resolve(nodeType string) (protocol.ExecutorFactory, bool) {
	factory, ok := r.factories[nodeType]

	return factory, ok
}

// Create validates the configuration against the factory schema and builds
// an executor instance.
func (r *Registry) Create(ctx context.Context, nodeType string, config map[string]any) (protocol.Executor, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	if schema := factory.Schema(); schema != nil {
		if err := validateSchema(config, schema); err != nil {
			return nil, fmt.Errorf("invalid configuration for node type '%s': %w", nodeType, err)
		}
	}

	return factory.Create(ctx, config)
}

// Available returns the registered node type identifiers.
func (r *Registry) Available() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

func validateSchema(config map[string]any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)

	if config == nil {
		config = map[string]any{}
	}

	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
