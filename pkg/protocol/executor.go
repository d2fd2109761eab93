// Package protocol defines the interfaces and contracts for pluggable node
// executors.
package protocol

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
)

// Executor runs a single node of a workflow. Implementations receive the
// node definition, a snapshot of the execution state, and the assembled
// executor context; they return a result describing output, state deltas,
// and any requested status transition.
type Executor interface {
	Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error)
}

// ExecutorFactory creates executor instances and provides metadata about the
// node type.
type ExecutorFactory interface {
	// Create creates a new executor instance with the given configuration.
	Create(ctx context.Context, config map[string]any) (Executor, error)

	// ID returns the unique node type identifier this factory serves.
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node type does.
	Description() string

	// Schema returns the JSON schema for configuring this node type.
	Schema() map[string]any
}
