// Package engine drives workflow executions: it validates graphs, runs the
// per-execution loop as a background task, enforces timeouts, retries and
// iteration caps, and owns the pause/resume/cancel lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/protocol"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/scheduler"
	"github.com/loomworks/loom/pkg/statestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Engine executes workflow definitions. The state store and execution index
// are injected shared instances: engines constructed per request all observe
// the same in-flight executions.
type Engine struct {
	store     *statestore.Store
	index     *execindex.Index
	registry  *registry.Registry
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	validate  *validator.Validate
	opts      Options

	mu      sync.Mutex
	handles map[string]*executionHandle
}

// NewEngine assembles an engine around shared store, index, registry and
// event publisher instances.
func NewEngine(store *statestore.Store, index *execindex.Index, reg *registry.Registry, publisher eventbus.EventPublisher, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		store:     store,
		index:     index,
		registry:  reg,
		publisher: publisher,
		logger:    logger.With("module", "engine"),
		tracer:    otel.Tracer("loom.engine"),
		validate:  validator.New(),
		opts:      opts.withDefaults(),
		handles:   make(map[string]*executionHandle),
	}
}

// RegisterExecutor adds an executor factory to the registry.
func (e *Engine) RegisterExecutor(factory protocol.ExecutorFactory) {
	e.registry.Register(factory)
}

// Start validates the graph, creates the execution state and launches the
// execution loop as an independent background task. It returns the initial
// state without waiting for any node to run, so the caller has an execution
// ID to subscribe with immediately.
func (e *Engine) Start(ctx context.Context, def *models.WorkflowDefinition, initialData map[string]any, opts StartOptions) (*models.ExecutionState, error) {
	if def == nil {
		return nil, NewError(CodeValidation, "workflow definition is required")
	}

	if err := e.validate.Struct(def); err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}

	if _, err := scheduler.DetectCycles(def.Nodes, def.Edges, def.Config.AllowCycles); err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}

	startNodes, err := scheduler.FindStartNodes(def)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}

	executionID := "exec-" + uuid.New().String()

	state, err := e.store.Create(executionID, def.ID, startNodes, initialData)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution state: %w", err)
	}

	e.index.Register(executionID, execindex.Registration{
		UserID:       opts.UserID,
		WorkflowID:   def.ID,
		WorkflowName: def.Name,
		Status:       models.ExecutionStatusPending,
	})

	runCtx, cancel := context.WithCancel(context.Background())

	handle := newExecutionHandle(executionID, def, cancel, models.ExecutionStatusPending)
	handle.userID = opts.UserID
	handle.locale = opts.Locale

	if deadline := def.Config.MaxExecutionTime(); deadline > 0 {
		handle.deadline = time.Now().UTC().Add(deadline)
	}

	e.mu.Lock()
	e.handles[executionID] = handle
	e.mu.Unlock()

	e.publish(ctx, executionID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, executionID, def.ID),
		WorkflowName: def.Name,
		StartNodes:   startNodes,
		Input:        events.SummarizePayload(initialData, 0),
	})

	go e.runLoop(runCtx, handle)

	return state, nil
}

// Pause suspends a running execution. Only valid from running. The run
// loop's context is revoked so an in-flight node aborts instead of writing
// back after the pause; it re-runs on resume.
func (e *Engine) Pause(ctx context.Context, executionID, reason string) (*models.ExecutionState, error) {
	state, err := e.getState(executionID)
	if err != nil {
		return nil, err
	}

	if state.Status != models.ExecutionStatusRunning {
		return nil, NewError(CodeInvalidStateForPause, "cannot pause execution in status %q", state.Status)
	}

	if handle := e.handle(executionID); handle != nil {
		_ = handle.fire(triggerPause)
		handle.cancel()
	}

	paused := models.ExecutionStatusPaused

	state, err = e.store.Update(executionID, statestore.Update{Status: &paused})
	if err != nil {
		return nil, err
	}

	if err := e.index.UpdateStatus(executionID, paused, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index on pause", "execution_id", executionID, "error", err)
	}

	e.checkpoint(ctx, executionID, "paused")

	e.publish(ctx, executionID, events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, executionID, state.WorkflowID),
		PauseReason: reason,
	})

	return state, nil
}

// Resume continues a paused execution: resumeData is deep-merged into state
// data, a fresh cancellation token is issued and the loop restarts from the
// persisted current nodes.
func (e *Engine) Resume(ctx context.Context, executionID string, resumeData map[string]any, opts ResumeOptions) (*models.ExecutionState, error) {
	state, err := e.getState(executionID)
	if err != nil {
		return nil, err
	}

	if state.Status != models.ExecutionStatusPaused {
		return nil, NewError(CodeInvalidStateForResume, "cannot resume execution in status %q", state.Status)
	}

	previous := e.handle(executionID)

	def := opts.Definition
	if def == nil && previous != nil {
		def = previous.definition
	}

	if def == nil {
		return nil, NewError(CodeExecutionNotFound, "no workflow definition available for execution %s; pass one explicitly after a restart", executionID)
	}

	if previous != nil {
		// One loop per execution: the previous loop must have observed the
		// pause before a new one may start.
		previous.cancel()

		select {
		case <-previous.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	running := models.ExecutionStatusRunning

	state, err = e.store.Update(executionID, statestore.Update{
		Status: &running,
		Data:   resumeData,
	})
	if err != nil {
		return nil, err
	}

	if err := e.index.UpdateStatus(executionID, running, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index on resume", "execution_id", executionID, "error", err)
	}

	if err := e.index.ClearPendingCheckpoint(executionID); err != nil {
		e.logger.Warn("Failed to clear pending checkpoint", "execution_id", executionID, "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	handle := newExecutionHandle(executionID, def, cancel, models.ExecutionStatusRunning)
	handle.seedIterations(state)

	if previous != nil {
		handle.userID = previous.userID
		handle.locale = previous.locale
		handle.deadline = previous.deadline
		handle.finalStatus, handle.outputVars, handle.lastOutput = previous.terminalShape()
	} else {
		handle.userID = opts.UserID
		handle.locale = opts.Locale

		// After a restart the deadline is rebuilt from the persisted start
		// time, so a resumed run keeps its original whole-run budget.
		if budget := def.Config.MaxExecutionTime(); budget > 0 && state.StartedAt != nil {
			handle.deadline = state.StartedAt.UTC().Add(budget)
		}
	}

	e.mu.Lock()
	e.handles[executionID] = handle
	e.mu.Unlock()

	e.publish(ctx, executionID, events.ExecutionResumed{
		BaseEvent:  events.NewBaseEvent(events.ExecutionResumedEvent, executionID, state.WorkflowID),
		ResumeData: events.SummarizePayload(resumeData, 0),
	})

	go e.runLoop(runCtx, handle)

	return state, nil
}

// Cancel stops an execution from any non-terminal status. Cancellation is
// cooperative: the in-flight node observes the token through its context.
// Cancelling an already terminal execution is a no-op returning the current
// state.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) (*models.ExecutionState, error) {
	state, err := e.getState(executionID)
	if err != nil {
		return nil, err
	}

	if state.Status.IsTerminal() {
		return state, nil
	}

	if handle := e.handle(executionID); handle != nil {
		_ = handle.fire(triggerCancel)
		handle.cancel()
	}

	cancelled := models.ExecutionStatusCancelled
	now := time.Now().UTC()

	state, err = e.store.Update(executionID, statestore.Update{
		Status:      &cancelled,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	if err := e.index.UpdateStatus(executionID, cancelled, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index on cancel", "execution_id", executionID, "error", err)
	}

	e.checkpoint(ctx, executionID, "cancelled")

	e.publish(ctx, executionID, events.ExecutionCancelled{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCancelledEvent, executionID, state.WorkflowID),
		Reason:        reason,
		NodesExecuted: state.NodesExecuted,
	})

	e.removeHandle(executionID)

	return state, nil
}

// GetState returns a copy of the execution state.
func (e *Engine) GetState(executionID string) (*models.ExecutionState, error) {
	return e.getState(executionID)
}

// ListActiveExecutions returns summaries of all non-terminal executions.
func (e *Engine) ListActiveExecutions() []statestore.Summary {
	return e.store.ActiveSummaries()
}

// ExecuteNode runs one node of an execution synchronously, outside the
// background loop. Used by tooling and tests; the full lifecycle semantics
// (retries, timeout clamp, state write-back) match the loop's.
func (e *Engine) ExecuteNode(ctx context.Context, executionID, nodeID string) (*models.ExecutorResult, error) {
	handle := e.handle(executionID)
	if handle == nil {
		return nil, NewError(CodeExecutionNotFound, "no live handle for execution %s", executionID)
	}

	state, err := e.getState(executionID)
	if err != nil {
		return nil, err
	}

	node := handle.definition.NodeByID(nodeID)
	if node == nil {
		return nil, NewError(CodeValidation, "node %s not found in workflow %s", nodeID, handle.definition.ID)
	}

	iteration := handle.nextIteration(nodeID)

	result, err := e.executeNode(ctx, handle, state, node, iteration)
	if err != nil {
		return nil, err
	}

	if result.Paused() || result.Failed() {
		return result, nil
	}

	if _, err := e.store.MarkNodeCompleted(executionID, nodeID, result, iteration); err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Engine) getState(executionID string) (*models.ExecutionState, error) {
	state, err := e.store.Get(executionID)
	if err != nil {
		return nil, &Error{Code: CodeExecutionNotFound, Message: fmt.Sprintf("execution %s not found", executionID), Err: err}
	}

	return state, nil
}

func (e *Engine) handle(executionID string) *executionHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.handles[executionID]
}

func (e *Engine) removeHandle(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handles, executionID)
}

// publish sends a lifecycle event, logging instead of failing the run when
// the transport misbehaves.
func (e *Engine) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, executionID, event); err != nil {
		e.logger.Warn("Failed to publish event",
			"execution_id", executionID,
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

// checkpoint writes a best-effort durable snapshot and emits the saved event.
func (e *Engine) checkpoint(ctx context.Context, executionID, reason string) {
	meta, err := e.store.Checkpoint(executionID, reason)
	if err != nil {
		e.logger.Error("Failed to write checkpoint", "execution_id", executionID, "reason", reason, "error", err)

		return
	}

	state, err := e.store.Get(executionID)
	workflowID := ""

	if err == nil {
		workflowID = state.WorkflowID
	}

	e.publish(ctx, executionID, events.CheckpointSaved{
		BaseEvent:    events.NewBaseEvent(events.CheckpointSavedEvent, executionID, workflowID),
		CheckpointID: meta.ID,
		Reason:       reason,
	})
}
