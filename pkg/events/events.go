// Package events defines the lifecycle events an engine emits while driving
// workflow executions, for consumption by external observers (UI bridges,
// logs, message buses).
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic all execution lifecycle events are published on.
const Topic = "loom.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	NodeStartedEvent        EventType = "execution.node.started"
	NodeCompletedEvent      EventType = "execution.node.completed"
	NodeFailedEvent         EventType = "execution.node.failed"
	NodeRetriedEvent        EventType = "execution.node.retried"
	ExecutionIterationEvent EventType = "execution.iteration"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	CheckpointSavedEvent    EventType = "execution.checkpoint.saved"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	WorkflowName string   `json:"workflow_name,omitempty"`
	StartNodes   []string `json:"start_nodes"`
	Input        any      `json:"input,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type NodeStarted struct {
	BaseEvent

	NodeID    string `json:"node_id"`
	NodeType  string `json:"node_type"`
	Iteration int    `json:"iteration"`
	Attempt   int    `json:"attempt"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	Iteration  int    `json:"iteration"`
	Output     any    `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	Attempt int    `json:"attempt"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type NodeRetried struct {
	BaseEvent

	NodeID      string `json:"node_id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	DelayMs     int64  `json:"delay_ms"`
	Error       string `json:"error"`
}

func (e NodeRetried) GetType() EventType {
	return NodeRetriedEvent
}

type ExecutionIteration struct {
	BaseEvent

	Iteration    int      `json:"iteration"`
	CurrentNodes []string `json:"current_nodes"`
}

func (e ExecutionIteration) GetType() EventType {
	return ExecutionIterationEvent
}

type ExecutionPaused struct {
	BaseEvent

	NodeID      string         `json:"node_id,omitempty"`
	PauseReason string         `json:"pause_reason,omitempty"`
	Checkpoint  map[string]any `json:"checkpoint,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ResumeData any `json:"resume_data,omitempty"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type CheckpointSaved struct {
	BaseEvent

	CheckpointID string `json:"checkpoint_id"`
	Reason       string `json:"reason"`
}

func (e CheckpointSaved) GetType() EventType {
	return CheckpointSavedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Status        string `json:"status"`
	StatusLabel   string `json:"status_label,omitempty"`
	Output        any    `json:"output,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionError identifies the node and error code that failed a run.
type ExecutionError struct {
	NodeID  string `json:"node_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ExecutionFailed struct {
	BaseEvent

	Error         ExecutionError `json:"error"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Reason        string `json:"reason,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}
