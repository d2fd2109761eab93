package engine

import (
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// Node timeout clamp. A node-level timeout outside this range is pulled back
// in so a misconfigured node can neither spin forever nor thrash.
const (
	MinNodeTimeout = 1 * time.Second
	MaxNodeTimeout = 30 * time.Minute
)

// DefaultMaxLoopIterations bounds the execution loop itself, so a scheduler
// bug cannot spin a run forever.
const DefaultMaxLoopIterations = 1000

// DefaultNodeTimeout applies when a node declares no timeout of its own.
const DefaultNodeTimeout = 5 * time.Minute

// Options tunes one Engine instance.
type Options struct {
	// DefaultNodeTimeout is the per-attempt timeout for nodes without an
	// explicit execution policy timeout.
	DefaultNodeTimeout time.Duration

	// MaxLoopIterations is the global ceiling on execution loop passes.
	MaxLoopIterations int

	// CheckpointEachNode writes a checkpoint after every completed node
	// instead of only at suspension and terminal states.
	CheckpointEachNode bool

	// DropCheckpointsOnTerminal removes the on-disk checkpoint directory
	// once an execution reaches a terminal status. The default keeps it,
	// so terminal states survive a process restart.
	DropCheckpointsOnTerminal bool
}

func (o Options) withDefaults() Options {
	if o.DefaultNodeTimeout <= 0 {
		o.DefaultNodeTimeout = DefaultNodeTimeout
	}

	if o.MaxLoopIterations <= 0 {
		o.MaxLoopIterations = DefaultMaxLoopIterations
	}

	return o
}

// clampNodeTimeout applies the global [MinNodeTimeout, MaxNodeTimeout] range.
func clampNodeTimeout(timeout time.Duration) time.Duration {
	if timeout < MinNodeTimeout {
		return MinNodeTimeout
	}

	if timeout > MaxNodeTimeout {
		return MaxNodeTimeout
	}

	return timeout
}

// StartOptions carries per-run caller context.
type StartOptions struct {
	UserID string
	Locale string
}

// ResumeOptions carries resume-time context. Definition is only needed when
// the engine no longer holds the run's in-memory handle, e.g. after a process
// restart recovered the execution from its checkpoint.
type ResumeOptions struct {
	UserID     string
	Locale     string
	Definition *models.WorkflowDefinition
}
