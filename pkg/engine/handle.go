package engine

import (
	"context"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/qmuntal/stateless"
)

// FSM triggers for the execution status machine.
const (
	triggerStart    = "start"
	triggerPause    = "pause"
	triggerResume   = "resume"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
)

// executionHandle is the per-execution runtime the engine keeps while a run
// is live: the cooperative cancellation token, the status machine, the graph
// definition, and loop-local counters. It never outlives the run; recovery
// after a restart rebuilds one from the persisted state.
type executionHandle struct {
	executionID string
	definition  *models.WorkflowDefinition
	cancel      context.CancelFunc
	done        chan struct{} // closed when the run loop exits
	machine     *stateless.StateMachine
	deadline    time.Time // zero means no whole-run deadline
	userID      string
	locale      string
	startedAt   time.Time

	mu             sync.Mutex
	nodeIterations map[string]int
	finalStatus    string
	outputVars     []string
	lastOutput     any
}

// newExecutionHandle builds a handle with the status machine wired for
// pending -> running <-> paused -> {completed, failed, cancelled}.
func newExecutionHandle(executionID string, def *models.WorkflowDefinition, cancel context.CancelFunc, initial models.ExecutionStatus) *executionHandle {
	machine := stateless.NewStateMachine(initial)

	machine.Configure(models.ExecutionStatusPending).
		Permit(triggerStart, models.ExecutionStatusRunning).
		Permit(triggerCancel, models.ExecutionStatusCancelled).
		Permit(triggerFail, models.ExecutionStatusFailed)

	machine.Configure(models.ExecutionStatusRunning).
		Permit(triggerPause, models.ExecutionStatusPaused).
		Permit(triggerComplete, models.ExecutionStatusCompleted).
		Permit(triggerFail, models.ExecutionStatusFailed).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	machine.Configure(models.ExecutionStatusPaused).
		Permit(triggerResume, models.ExecutionStatusRunning).
		Permit(triggerFail, models.ExecutionStatusFailed).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	return &executionHandle{
		executionID:    executionID,
		definition:     def,
		cancel:         cancel,
		done:           make(chan struct{}),
		machine:        machine,
		startedAt:      time.Now().UTC(),
		nodeIterations: make(map[string]int),
	}
}

// fire advances the status machine, ignoring transitions the machine
// forbids; the store remains the authority on status, the machine guards the
// engine's own call sequencing.
func (h *executionHandle) fire(trigger string) error {
	return h.machine.Fire(trigger)
}

// nextIteration bumps and returns the visit counter for nodeID (1-based).
func (h *executionHandle) nextIteration(nodeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nodeIterations[nodeID]++

	return h.nodeIterations[nodeID]
}

// seedIterations primes the per-node counters from persisted node results so
// loop caps survive a pause/resume or a restart.
func (h *executionHandle) seedIterations(state *models.ExecutionState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for nodeID, result := range state.NodeResults() {
		entry, ok := result.(map[string]any)
		if !ok {
			continue
		}

		switch iteration := entry["iteration"].(type) {
		case int:
			h.nodeIterations[nodeID] = iteration
		case float64:
			h.nodeIterations[nodeID] = int(iteration)
		}
	}
}

// recordEndNode captures the terminal shaping an end node declared.
func (h *executionHandle) recordEndNode(result *models.ExecutorResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if result.WorkflowStatus != "" {
		h.finalStatus = result.WorkflowStatus
	}

	if len(result.OutputVariables) > 0 {
		h.outputVars = append([]string{}, result.OutputVariables...)
	}
}

// recordOutput remembers the most recent node output as the completion
// fallback when no end node declared output variables.
func (h *executionHandle) recordOutput(output any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if output != nil {
		h.lastOutput = output
	}
}

func (h *executionHandle) terminalShape() (string, []string, any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.finalStatus, append([]string{}, h.outputVars...), h.lastOutput
}
