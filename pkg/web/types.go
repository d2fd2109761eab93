package web

import "github.com/loomworks/loom/pkg/models"

// StartExecutionRequest is the POST /executions body.
type StartExecutionRequest struct {
	Workflow *models.WorkflowDefinition `json:"workflow" validate:"required"`
	Input    map[string]any             `json:"input,omitempty"`
	UserID   string                     `json:"user_id,omitempty"`
	Locale   string                     `json:"locale,omitempty"`
}

// PauseExecutionRequest is the POST /executions/:id/pause body.
type PauseExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResumeExecutionRequest is the POST /executions/:id/resume body. Workflow is
// only needed when the server restarted since the execution paused.
type ResumeExecutionRequest struct {
	Data     map[string]any             `json:"data,omitempty"`
	Workflow *models.WorkflowDefinition `json:"workflow,omitempty"`
}

// CancelExecutionRequest is the POST /executions/:id/cancel body.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}
