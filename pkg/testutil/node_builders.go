// Package testutil provides test data builders for workflow graphs.
package testutil

import (
	"github.com/google/uuid"
	"github.com/loomworks/loom/pkg/models"
)

// CreateTestNode creates a Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:       uuid.New().String(),
		Type:     "transform",
		Category: models.CategoryTypeAction,
		Name:     "Test Node",
		Config:   map[string]any{"expression": "ok"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithEntryCategory tags the node as an entry point.
func WithEntryCategory() func(*models.Node) {
	return func(n *models.Node) {
		n.Category = models.CategoryTypeEntry
	}
}

// WithPolicy sets the node execution policy.
func WithPolicy(policy models.NodePolicy) func(*models.Node) {
	return func(n *models.Node) {
		n.Execution = policy
	}
}

// CreateTestDefinition creates a definition around the given nodes with no edges.
func CreateTestDefinition(nodes ...*models.Node) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:    "wf-" + uuid.New().String(),
		Name:  "Test Workflow",
		Nodes: nodes,
	}
}

// CreateTestEdge creates an unconditional edge between two nodes.
func CreateTestEdge(from, to string) *models.Edge {
	return &models.Edge{
		ID:   uuid.New().String(),
		From: from,
		To:   to,
	}
}

// CreateConditionalEdge creates an edge followed only when the condition
// renders truthy.
func CreateConditionalEdge(from, to, condition string) *models.Edge {
	return &models.Edge{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Condition: condition,
	}
}
