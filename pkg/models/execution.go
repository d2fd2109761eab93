package models

import (
	"slices"
	"time"
)

// ExecutionStatus is the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepEvent is one entry in the append-only execution history.
type StepEvent struct {
	NodeID    string    `json:"node_id"`
	Type      string    `json:"type"`
	Attempt   int       `json:"attempt,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionError is one entry in the execution error log.
type ExecutionError struct {
	Code      string    `json:"code"`
	NodeID    string    `json:"node_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointMeta is the in-state record of a persisted checkpoint. The full
// snapshot lives on disk next to the execution's latest.json.
type CheckpointMeta struct {
	ID           string          `json:"id"`
	Reason       string          `json:"reason"`
	Status       ExecutionStatus `json:"status"`
	CurrentNodes []string        `json:"current_nodes"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ExecutionState is the authoritative, versioned state of one workflow
// execution. CurrentNodes and CompletedNodes are disjoint at all times;
// CompletedNodes is ordered and de-duplicated (dependency tracking), while
// NodesExecuted counts every invocation so loop iterations stay visible.
type ExecutionState struct {
	ExecutionID    string           `json:"execution_id"`
	WorkflowID     string           `json:"workflow_id"`
	Status         ExecutionStatus  `json:"status"`
	StatusLabel    string           `json:"status_label,omitempty"` // Custom terminal label ("approved", ...), not a status value
	CurrentNodes   []string         `json:"current_nodes"`
	CompletedNodes []string         `json:"completed_nodes"`
	FailedNodes    []string         `json:"failed_nodes"`
	NodesExecuted  int              `json:"nodes_executed"`
	Data           map[string]any   `json:"data"`
	History        []StepEvent      `json:"history"`
	Checkpoints    []CheckpointMeta `json:"checkpoints"`
	Errors         []ExecutionError `json:"errors"`
	Output         any              `json:"output,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	RestoredAt     *time.Time       `json:"restored_at,omitempty"`
}

// HasCompleted reports whether the node already appears in CompletedNodes.
func (s *ExecutionState) HasCompleted(nodeID string) bool {
	return slices.Contains(s.CompletedNodes, nodeID)
}

// NodeResults returns the per-node result map stored under data["node_results"].
func (s *ExecutionState) NodeResults() map[string]any {
	if s.Data == nil {
		return map[string]any{}
	}

	results, ok := s.Data["node_results"].(map[string]any)
	if !ok {
		return map[string]any{}
	}

	return results
}

// Clone returns a deep copy of the state. Callers mutate copies, never the
// store's cached instance.
func (s *ExecutionState) Clone() *ExecutionState {
	clone := *s

	clone.CurrentNodes = slices.Clone(s.CurrentNodes)
	clone.CompletedNodes = slices.Clone(s.CompletedNodes)
	clone.FailedNodes = slices.Clone(s.FailedNodes)
	clone.History = slices.Clone(s.History)
	clone.Errors = slices.Clone(s.Errors)

	clone.Checkpoints = make([]CheckpointMeta, len(s.Checkpoints))
	for i, cp := range s.Checkpoints {
		clone.Checkpoints[i] = cp
		clone.Checkpoints[i].CurrentNodes = slices.Clone(cp.CurrentNodes)
	}

	clone.Data = cloneValue(s.Data).(map[string]any)

	return &clone
}

// cloneValue deep-copies the JSON-shaped subset of Go values (maps, slices,
// scalars). Anything else is shared by reference.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
