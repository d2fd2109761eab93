package delay

import (
	"context"
	"errors"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// DelayExecutor blocks for a fixed duration, honouring context cancellation.
type DelayExecutor struct {
	duration time.Duration
}

func NewDelayExecutor(config map[string]any) (*DelayExecutor, error) {
	var durationMs float64

	switch v := config["duration_ms"].(type) {
	case float64:
		durationMs = v
	case int:
		durationMs = float64(v)
	case int64:
		durationMs = float64(v)
	default:
		return nil, errors.New("missing required field 'duration_ms'")
	}

	if durationMs < 0 {
		return nil, errors.New("'duration_ms' must not be negative")
	}

	return &DelayExecutor{duration: time.Duration(durationMs) * time.Millisecond}, nil
}

func (e *DelayExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	timer := time.NewTimer(e.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &models.ExecutorResult{
		Output: map[string]any{"waited_ms": e.duration.Milliseconds()},
	}, nil
}
