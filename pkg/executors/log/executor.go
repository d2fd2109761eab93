package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// LogExecutor renders and logs a message, passing the rendered text through
// as the node output.
type LogExecutor struct {
	message string
	level   string
	logger  *slog.Logger
}

func NewLogExecutor(config map[string]any) (*LogExecutor, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level := "info"
	if lvl, ok := config["level"].(string); ok {
		level = lvl
	}

	return &LogExecutor{
		message: message,
		level:   level,
		logger:  slog.Default(),
	}, nil
}

func (e *LogExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	rendered, err := template.RenderWithContext(e.message, ectx)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%v", rendered)

	logger := e.logger.With("execution_id", ectx.ExecutionID, "node_id", node.ID)

	switch e.level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}

	return &models.ExecutorResult{
		Output: map[string]any{
			"message": message,
			"level":   e.level,
		},
	}, nil
}
