package models

import "time"

// IndexEntry is the execution index's user-keyed view of one execution. It is
// a projection of ExecutionState, cheap to list and independently persisted.
type IndexEntry struct {
	ExecutionID       string          `json:"execution_id"`
	UserID            string          `json:"user_id,omitempty"`
	WorkflowID        string          `json:"workflow_id"`
	WorkflowName      string          `json:"workflow_name,omitempty"`
	Status            ExecutionStatus `json:"status"`
	CurrentNode       string          `json:"current_node,omitempty"`
	PendingCheckpoint map[string]any  `json:"pending_checkpoint,omitempty"` // Non-nil only while paused for human input
	StartedAt         time.Time       `json:"started_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}
