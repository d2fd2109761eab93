package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/otelhelper"
	"github.com/loomworks/loom/pkg/scheduler"
	"github.com/loomworks/loom/pkg/statestore"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
)

// minRetryDelay keeps the constant backoff strictly positive.
const minRetryDelay = 10 * time.Millisecond

// runLoop is the per-execution background task. One loop per execution;
// nodes within a run execute strictly sequentially.
func (e *Engine) runLoop(ctx context.Context, h *executionHandle) {
	defer close(h.done)

	executionID := h.executionID
	def := h.definition

	loopCtx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkflowIDKey, def.ID),
	)
	defer span.End()

	_ = h.fire(triggerStart)

	running := models.ExecutionStatusRunning
	now := time.Now().UTC()

	if _, err := e.store.Update(executionID, statestore.Update{Status: &running, StartedAt: &now}); err != nil {
		e.logger.Error("Failed to mark execution running", "execution_id", executionID, "error", err)

		return
	}

	if err := e.index.UpdateStatus(executionID, running, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index", "execution_id", executionID, "error", err)
	}

	loops := 0

	for {
		loops++
		if loops > e.opts.MaxLoopIterations {
			e.failExecution(loopCtx, h, models.ExecutionError{
				Code:    CodeMaxIterationsExceeded,
				Message: fmt.Sprintf("execution loop exceeded %d iterations", e.opts.MaxLoopIterations),
			})

			return
		}

		if loopCtx.Err() != nil {
			// Cancelled. The Cancel call already recorded the terminal state.
			return
		}

		if !h.deadline.IsZero() && time.Now().UTC().After(h.deadline) {
			e.failExecution(loopCtx, h, models.ExecutionError{
				Code:    CodeMaxExecutionTimeExceeded,
				Message: fmt.Sprintf("execution exceeded its deadline of %s", def.Config.MaxExecutionTime()),
			})

			return
		}

		state, err := e.store.Get(executionID)
		if err != nil {
			e.logger.Error("Failed to read execution state", "execution_id", executionID, "error", err)

			return
		}

		if state.Status != models.ExecutionStatusRunning {
			// Paused or cancelled from outside the loop.
			return
		}

		if len(state.CurrentNodes) == 0 {
			e.completeExecution(loopCtx, h, state)

			return
		}

		executable := scheduler.ExecutableNodes(def, state.CurrentNodes, state.CompletedNodes)
		if len(executable) == 0 {
			e.failExecution(loopCtx, h, models.ExecutionError{
				Code:    CodeValidation,
				Message: fmt.Sprintf("no executable nodes among %v: unsatisfiable dependencies", state.CurrentNodes),
			})

			return
		}

		e.publish(loopCtx, executionID, events.ExecutionIteration{
			BaseEvent:    events.NewBaseEvent(events.ExecutionIterationEvent, executionID, def.ID),
			Iteration:    loops,
			CurrentNodes: slices.Clone(state.CurrentNodes),
		})

		for _, nodeID := range executable {
			if loopCtx.Err() != nil {
				return
			}

			if done := e.runNode(loopCtx, h, nodeID); done {
				return
			}
		}
	}
}

// runNode executes one node of the run, including state write-back and next
// node scheduling. A true return means the loop must stop, whether for a
// suspension, a failure or cancellation.
func (e *Engine) runNode(ctx context.Context, h *executionHandle, nodeID string) bool {
	executionID := h.executionID
	def := h.definition

	node := def.NodeByID(nodeID)
	if node == nil {
		e.failExecution(ctx, h, models.ExecutionError{
			Code:    CodeValidation,
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %s not found in workflow %s", nodeID, def.ID),
		})

		return true
	}

	iteration := h.nextIteration(nodeID)

	if limit := def.Config.MaxIterationsPerNode; limit > 0 && iteration > limit {
		e.failExecution(ctx, h, models.ExecutionError{
			Code:    CodeMaxNodeIterationsExceeded,
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %s entered %d times, cap is %d", nodeID, iteration, limit),
		})

		return true
	}

	state, err := e.store.Get(executionID)
	if err != nil {
		e.logger.Error("Failed to read execution state", "execution_id", executionID, "error", err)

		return true
	}

	started := time.Now().UTC()

	nodeCtx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.Int(otelhelper.IterationKey, iteration),
	)

	result, execErr := e.executeNode(nodeCtx, h, state, node, iteration)
	if execErr != nil {
		otelhelper.SetError(span, execErr)
		span.End()

		if ctx.Err() != nil {
			// Cancelled mid-node; Cancel owns the terminal state.
			return true
		}

		execError := models.ExecutionError{
			Code:    CodeOf(execErr),
			NodeID:  nodeID,
			Message: execErr.Error(),
		}

		if _, err := e.store.MarkNodeFailed(executionID, nodeID, execError); err != nil {
			e.logger.Error("Failed to mark node failed", "execution_id", executionID, "node_id", nodeID, "error", err)
		}

		e.failExecution(ctx, h, execError)

		return true
	}

	span.End()

	if ctx.Err() != nil {
		// Paused or cancelled while the node was in flight. Whoever revoked
		// the context owns the state; the result is discarded and the node
		// re-runs on resume.
		return true
	}

	if result.Paused() {
		e.suspendExecution(ctx, h, node, result)

		return true
	}

	h.recordEndNode(result)
	h.recordOutput(result.Output)

	state, err = e.store.MarkNodeCompleted(executionID, nodeID, result, iteration)
	if err != nil {
		code := CodeInternal
		if errors.Is(err, statestore.ErrStateSizeExceeded) {
			code = CodeStateSizeExceeded
		}

		e.failExecution(ctx, h, models.ExecutionError{Code: code, NodeID: nodeID, Message: err.Error()})

		return true
	}

	if err := e.store.AddStep(executionID, models.StepEvent{
		NodeID:    nodeID,
		Type:      "node.completed",
		Iteration: iteration,
	}); err != nil {
		e.logger.Warn("Failed to append history", "execution_id", executionID, "node_id", nodeID, "error", err)
	}

	e.publish(ctx, executionID, events.NodeCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeCompletedEvent, executionID, def.ID),
		NodeID:     nodeID,
		Iteration:  iteration,
		Output:     events.SummarizePayload(result.Output, 0),
		DurationMs: time.Since(started).Milliseconds(),
	})

	next, err := scheduler.NextNodes(nodeID, result, def, state)
	if err != nil {
		e.failExecution(ctx, h, models.ExecutionError{Code: CodeValidation, NodeID: nodeID, Message: err.Error()})

		return true
	}

	if len(next) > 0 {
		current := slices.Clone(state.CurrentNodes)

		for _, id := range next {
			if !slices.Contains(current, id) {
				current = append(current, id)
			}
		}

		updated, err := e.store.Update(executionID, statestore.Update{CurrentNodes: current})
		if err != nil {
			e.failExecution(ctx, h, models.ExecutionError{Code: CodeInternal, NodeID: nodeID, Message: err.Error()})

			return true
		}

		// Stamp the status the store reports, not an assumed "running": a
		// concurrent pause may have landed since the node started.
		if err := e.index.UpdateStatus(executionID, updated.Status, execindex.StatusUpdate{
			CurrentNode: &next[0],
		}); err != nil {
			e.logger.Warn("Failed to update index", "execution_id", executionID, "error", err)
		}
	}

	if e.opts.CheckpointEachNode {
		e.checkpoint(ctx, executionID, "node:"+nodeID)
	}

	return false
}

// executeNode resolves the executor, builds the invocation context and runs
// the attempt loop: per-attempt timeout plus a fixed-delay retry envelope of
// 1 + policy.Retries total attempts.
func (e *Engine) executeNode(ctx context.Context, h *executionHandle, state *models.ExecutionState, node *models.Node, iteration int) (*models.ExecutorResult, error) {
	executionID := h.executionID

	if _, ok := e.registry.Resolve(node.Type); !ok {
		return nil, &Error{
			Code:    CodeExecutorNotFound,
			NodeID:  node.ID,
			Message: fmt.Sprintf("no executor registered for node type %q", node.Type),
		}
	}

	executor, err := e.registry.Create(ctx, node.Type, node.Config)
	if err != nil {
		return nil, &Error{Code: CodeValidation, NodeID: node.ID, Message: err.Error(), Err: err}
	}

	timeout := node.Execution.Timeout()
	if timeout <= 0 {
		timeout = e.opts.DefaultNodeTimeout
	}

	timeout = clampNodeTimeout(timeout)

	input := make(map[string]any, len(state.Data))

	for key, value := range state.Data {
		if key != "node_results" {
			input[key] = value
		}
	}

	ectx := &models.ExecutorContext{
		ExecutionID: executionID,
		WorkflowID:  state.WorkflowID,
		Input:       input,
		NodeResults: state.NodeResults(),
		Iteration:   iteration,
		UserID:      h.userID,
		Locale:      h.locale,
	}

	retries := node.Execution.Retries
	if retries < 0 {
		retries = 0
	}

	delay := node.Execution.RetryDelay()
	if delay < minRetryDelay {
		delay = minRetryDelay
	}

	attempt := 0

	var result *models.ExecutorResult

	err = retry.Do(ctx, retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay)), func(ctx context.Context) error {
		attempt++

		e.publish(ctx, executionID, events.NodeStarted{
			BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, executionID, state.WorkflowID),
			NodeID:    node.ID,
			NodeType:  node.Type,
			Iteration: iteration,
			Attempt:   attempt,
		})

		if err := e.store.AddStep(executionID, models.StepEvent{
			NodeID:    node.ID,
			Type:      "node.started",
			Attempt:   attempt,
			Iteration: iteration,
		}); err != nil {
			e.logger.Warn("Failed to append history", "execution_id", executionID, "node_id", node.ID, "error", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, execErr := executor.Execute(attemptCtx, node, state, ectx)
		if execErr == nil && res != nil && res.Failed() {
			execErr = NewError(CodeNodeFailed, "executor reported failure: %s", res.Error)
		}

		if execErr != nil {
			code := CodeOf(execErr)
			if code == CodeInternal {
				code = CodeNodeFailed
			}

			if errors.Is(execErr, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				code = CodeNodeTimeout
			}

			e.publish(ctx, executionID, events.NodeFailed{
				BaseEvent: events.NewBaseEvent(events.NodeFailedEvent, executionID, state.WorkflowID),
				NodeID:    node.ID,
				Code:      code,
				Error:     execErr.Error(),
				Attempt:   attempt,
			})

			if attempt <= retries {
				e.publish(ctx, executionID, events.NodeRetried{
					BaseEvent:   events.NewBaseEvent(events.NodeRetriedEvent, executionID, state.WorkflowID),
					NodeID:      node.ID,
					Attempt:     attempt + 1,
					MaxAttempts: retries + 1,
					DelayMs:     delay.Milliseconds(),
					Error:       execErr.Error(),
				})

				if err := e.store.AddStep(executionID, models.StepEvent{
					NodeID:    node.ID,
					Type:      "node.retried",
					Attempt:   attempt + 1,
					Iteration: iteration,
					Detail:    execErr.Error(),
				}); err != nil {
					e.logger.Warn("Failed to append history", "execution_id", executionID, "node_id", node.ID, "error", err)
				}
			}

			return retry.RetryableError(&Error{Code: code, NodeID: node.ID, Message: execErr.Error(), Err: execErr})
		}

		if res == nil {
			res = &models.ExecutorResult{}
		}

		result = res

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// suspendExecution parks a run on a paused executor result: state updates
// are merged, the pending checkpoint lands in the index, a durable snapshot
// is written and the loop exits without error.
func (e *Engine) suspendExecution(ctx context.Context, h *executionHandle, node *models.Node, result *models.ExecutorResult) {
	executionID := h.executionID

	_ = h.fire(triggerPause)

	paused := models.ExecutionStatusPaused

	if _, err := e.store.Update(executionID, statestore.Update{
		Status: &paused,
		Data:   result.StateUpdates,
	}); err != nil {
		e.logger.Error("Failed to mark execution paused", "execution_id", executionID, "error", err)
	}

	if err := e.index.UpdateStatus(executionID, paused, execindex.StatusUpdate{
		CurrentNode:       &node.ID,
		PendingCheckpoint: result.Checkpoint,
	}); err != nil {
		e.logger.Warn("Failed to update index on suspension", "execution_id", executionID, "error", err)
	}

	e.checkpoint(ctx, executionID, "paused")

	e.publish(ctx, executionID, events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, executionID, h.definition.ID),
		NodeID:      node.ID,
		PauseReason: result.PauseReason,
		Checkpoint:  result.Checkpoint,
	})
}

// completeExecution stamps the terminal completed state, shaping the output
// from end-node declared variables with the last node result as fallback.
func (e *Engine) completeExecution(ctx context.Context, h *executionHandle, state *models.ExecutionState) {
	executionID := h.executionID

	finalStatus, outputVars, lastOutput := h.terminalShape()

	output := lastOutput
	if len(outputVars) > 0 {
		selected := make(map[string]any, len(outputVars))

		for _, name := range outputVars {
			if value, ok := state.Data[name]; ok {
				selected[name] = value
			}
		}

		output = selected
	}

	_ = h.fire(triggerComplete)

	completed := models.ExecutionStatusCompleted
	now := time.Now().UTC()

	state, err := e.store.Update(executionID, statestore.Update{
		Status:      &completed,
		StatusLabel: &finalStatus,
		Output:      output,
		HasOutput:   true,
		CompletedAt: &now,
	})
	if err != nil {
		e.logger.Error("Failed to mark execution completed", "execution_id", executionID, "error", err)

		return
	}

	if err := e.index.UpdateStatus(executionID, completed, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index on completion", "execution_id", executionID, "error", err)
	}

	e.checkpoint(ctx, executionID, "completed")

	e.publish(ctx, executionID, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, executionID, state.WorkflowID),
		Status:        string(completed),
		StatusLabel:   finalStatus,
		Output:        events.SummarizePayload(output, 0),
		DurationMs:    time.Since(h.startedAt).Milliseconds(),
		NodesExecuted: state.NodesExecuted,
	})

	e.removeHandle(executionID)

	if e.opts.DropCheckpointsOnTerminal {
		if err := e.store.Cleanup(executionID, false); err != nil {
			e.logger.Warn("Failed to drop checkpoints", "execution_id", executionID, "error", err)
		}
	}

	e.logger.Info("Execution completed",
		"execution_id", executionID,
		"status_label", finalStatus,
		"nodes_executed", state.NodesExecuted,
	)
}

// failExecution records the error, stamps the terminal failed state and
// always writes a best-effort final checkpoint so the failure is durable.
func (e *Engine) failExecution(ctx context.Context, h *executionHandle, execErr models.ExecutionError) {
	executionID := h.executionID

	if err := e.store.AddError(executionID, execErr); err != nil {
		e.logger.Error("Failed to record execution error", "execution_id", executionID, "error", err)
	}

	_ = h.fire(triggerFail)

	failed := models.ExecutionStatusFailed
	now := time.Now().UTC()

	state, err := e.store.Update(executionID, statestore.Update{
		Status:      &failed,
		CompletedAt: &now,
	})
	if err != nil {
		e.logger.Error("Failed to mark execution failed", "execution_id", executionID, "error", err)

		return
	}

	if err := e.index.UpdateStatus(executionID, failed, execindex.StatusUpdate{}); err != nil {
		e.logger.Warn("Failed to update index on failure", "execution_id", executionID, "error", err)
	}

	e.checkpoint(ctx, executionID, "failed")

	e.publish(ctx, executionID, events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, executionID, state.WorkflowID),
		Error: events.ExecutionError{
			NodeID:  execErr.NodeID,
			Code:    execErr.Code,
			Message: execErr.Message,
		},
		DurationMs:    time.Since(h.startedAt).Milliseconds(),
		NodesExecuted: state.NodesExecuted,
	})

	e.removeHandle(executionID)

	e.logger.Error("Execution failed",
		"execution_id", executionID,
		"code", execErr.Code,
		"node_id", execErr.NodeID,
		"error", execErr.Message,
	)
}
