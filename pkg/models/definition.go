// Package models defines the core domain models for graph-based workflow execution.
package models

import "time"

// CategoryType represents the category of a node within a workflow graph.
type CategoryType string

const (
	CategoryTypeAction CategoryType = "action" // Regular action nodes (transform, httprequest, log, ...)
	CategoryTypeEntry  CategoryType = "entry"  // Entry nodes that receive the initial run input
)

// WorkflowConfig carries graph-level execution limits.
type WorkflowConfig struct {
	AllowCycles          bool  `json:"allow_cycles"            yaml:"allow_cycles"`
	MaxIterationsPerNode int   `json:"max_iterations_per_node" yaml:"max_iterations_per_node"`
	MaxExecutionTimeMs   int64 `json:"max_execution_time_ms"   yaml:"max_execution_time_ms"`
}

// MaxExecutionTime returns the whole-run deadline as a duration. Zero means no deadline.
func (c WorkflowConfig) MaxExecutionTime() time.Duration {
	return time.Duration(c.MaxExecutionTimeMs) * time.Millisecond
}

// WorkflowDefinition is a declarative workflow graph. It is immutable once a
// run starts; the engine never writes back into the definition.
type WorkflowDefinition struct {
	ID     string         `json:"id"     yaml:"id"     validate:"required"`
	Name   string         `json:"name"   yaml:"name"   validate:"required,min=3"`
	Nodes  []*Node        `json:"nodes"  yaml:"nodes"  validate:"required,min=1,dive"`
	Edges  []*Edge        `json:"edges"  yaml:"edges"  validate:"dive"`
	Config WorkflowConfig `json:"config" yaml:"config"`
}

// NodeByID returns the node with the given ID, or nil.
func (d *WorkflowDefinition) NodeByID(nodeID string) *Node {
	for _, node := range d.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}

// OnErrorPolicy selects how a node failure (after retries) affects the run.
// Only "fail" is implemented; "skip" and "fallback" are reserved for a future
// per-node continuation policy.
type OnErrorPolicy string

const (
	OnErrorFail     OnErrorPolicy = "fail"
	OnErrorSkip     OnErrorPolicy = "skip"
	OnErrorFallback OnErrorPolicy = "fallback"
)

// NodePolicy bounds a single node execution: timeout, retry count and the
// fixed delay between attempts.
type NodePolicy struct {
	TimeoutMs    int64         `json:"timeout_ms,omitempty"     yaml:"timeout_ms,omitempty"`
	Retries      int           `json:"retries,omitempty"        yaml:"retries,omitempty"`
	RetryDelayMs int64         `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`
	OnError      OnErrorPolicy `json:"on_error,omitempty"       yaml:"on_error,omitempty"`
}

// Timeout returns the per-attempt timeout as a duration. Zero means unset.
func (p NodePolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the inter-attempt delay as a duration.
func (p NodePolicy) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// Node is a single step in a workflow graph, dispatched to an executor by Type.
type Node struct {
	ID        string         `json:"id"        yaml:"id"   validate:"required"`
	Type      string         `json:"type"      yaml:"type" validate:"required"`
	Category  CategoryType   `json:"category,omitempty"  yaml:"category,omitempty"`
	Name      string         `json:"name,omitempty"      yaml:"name,omitempty"`
	Config    map[string]any `json:"config,omitempty"    yaml:"config,omitempty"`
	Execution NodePolicy     `json:"execution,omitempty" yaml:"execution,omitempty"`
}

// IsEntryNode reports whether the node is explicitly tagged as an entry point.
func (n *Node) IsEntryNode() bool {
	return n.Category == CategoryTypeEntry
}

// Edge is a directed transition between two nodes. A non-empty Condition is a
// template expression evaluated against the source node's result and the
// current state data; the edge is followed only when it renders truthy.
type Edge struct {
	ID        string `json:"id,omitempty"        yaml:"id,omitempty"`
	From      string `json:"from"                yaml:"from" validate:"required"`
	To        string `json:"to"                  yaml:"to"   validate:"required"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}
