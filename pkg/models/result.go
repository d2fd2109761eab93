package models

// Executor result statuses. An empty status means success.
const (
	ResultStatusFailed = "failed"
	ResultStatusPaused = "paused"
)

// ExecutionMetrics carries optional executor-reported measurements.
type ExecutionMetrics struct {
	DurationMs   int64 `json:"duration_ms,omitempty"`
	InputTokens  int   `json:"input_tokens,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`
	TotalTokens  int   `json:"total_tokens,omitempty"`
}

// ExecutorResult is what a node executor hands back to the engine.
//
// Status empty means success. "paused" suspends the run (Checkpoint then
// describes the requested input); "failed" reports an executor-level failure
// without an error return. StateUpdates are deep-merged into state data.
// WorkflowStatus and OutputVariables are only meaningful from an end node:
// the former becomes the execution's terminal StatusLabel, the latter selects
// which data keys form the final output.
type ExecutorResult struct {
	Status          string            `json:"status,omitempty"`
	Output          any               `json:"output,omitempty"`
	StateUpdates    map[string]any    `json:"state_updates,omitempty"`
	WorkflowStatus  string            `json:"workflow_status,omitempty"`
	OutputVariables []string          `json:"output_variables,omitempty"`
	Metrics         *ExecutionMetrics `json:"metrics,omitempty"`
	Checkpoint      map[string]any    `json:"checkpoint,omitempty"`
	PauseReason     string            `json:"pause_reason,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Failed reports whether the executor flagged the result as a failure.
func (r *ExecutorResult) Failed() bool {
	return r != nil && r.Status == ResultStatusFailed
}

// Paused reports whether the executor requested a suspension.
func (r *ExecutorResult) Paused() bool {
	return r != nil && r.Status == ResultStatusPaused
}

// ExecutorContext is the per-invocation context the engine builds for an
// executor. Cancellation travels on the context.Context passed to Execute.
type ExecutorContext struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Input       map[string]any `json:"input,omitempty"`        // Initial run input plus any resume data
	NodeResults map[string]any `json:"node_results,omitempty"` // Results of previously completed nodes
	Iteration   int            `json:"iteration"`              // Current visit count for this node (1-based)
	UserID      string         `json:"user_id,omitempty"`
	Locale      string         `json:"locale,omitempty"`
}
