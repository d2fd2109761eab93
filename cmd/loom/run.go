package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/loomworks/loom/pkg/cmd"
	"github.com/loomworks/loom/pkg/engine"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/log"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const pollInterval = 100 * time.Millisecond

// loadDefinition reads a workflow definition file. YAML is a superset of
// JSON, so one decoder serves both formats.
func loadDefinition(path string) (*models.WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var def models.WorkflowDefinition

	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	return &def, nil
}

func runWorkflow(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("cli")

	def, err := loadDefinition(command.String("file"))
	if err != nil {
		return err
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(command.String("input")), &input); err != nil {
		return fmt.Errorf("failed to parse --input: %w", err)
	}

	runtime, err := cmd.NewRuntime(logger, command.String("data-dir"), command.String("event-bus"), engine.Options{})
	if err != nil {
		return err
	}

	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Error("Failed to close runtime", "error", err)
		}
	}()

	state, err := runtime.Engine.Start(ctx, def, input, engine.StartOptions{})
	if err != nil {
		return err
	}

	logger.Info("Execution started", "execution_id", state.ExecutionID, "workflow_id", def.ID)

	for {
		select {
		case <-ctx.Done():
			_, cancelErr := runtime.Engine.Cancel(context.Background(), state.ExecutionID, "interrupted")

			return cancelErr
		case <-time.After(pollInterval):
		}

		current, err := runtime.Engine.GetState(state.ExecutionID)
		if err != nil {
			return err
		}

		if current.Status == models.ExecutionStatusPaused {
			logger.Warn("Execution paused awaiting input; resume it through the API",
				"execution_id", current.ExecutionID,
			)

			return nil
		}

		if current.Status.IsTerminal() {
			return printResult(current)
		}
	}
}

func printResult(state *models.ExecutionState) error {
	out, err := json.MarshalIndent(map[string]any{
		"execution_id":   state.ExecutionID,
		"status":         state.Status,
		"status_label":   state.StatusLabel,
		"nodes_executed": state.NodesExecuted,
		"output":         state.Output,
		"errors":         state.Errors,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	if state.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("execution finished with status %s", state.Status)
	}

	return nil
}

func validateWorkflow(command *cli.Command) error {
	def, err := loadDefinition(command.String("file"))
	if err != nil {
		return err
	}

	if err := validator.New().Struct(def); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}

	if _, err := scheduler.DetectCycles(def.Nodes, def.Edges, def.Config.AllowCycles); err != nil {
		return err
	}

	startNodes, err := scheduler.FindStartNodes(def)
	if err != nil {
		return err
	}

	fmt.Printf("workflow %s is valid (%d nodes, start: %v)\n", def.ID, len(def.Nodes), startNodes)

	return nil
}

func listExecutions(command *cli.Command) error {
	logger := log.WithModule("cli")

	index := execindex.NewIndex(command.String("data-dir"), logger)
	if err := index.LoadFromDisk(); err != nil {
		return err
	}

	var entries []*models.IndexEntry
	if user := command.String("user"); user != "" {
		entries = index.GetByUser(user, execindex.Query{})
	} else {
		entries = index.GetActive()
	}

	for _, entry := range entries {
		fmt.Printf("%s  %-10s  %-20s  %s\n",
			entry.ExecutionID, entry.Status, entry.WorkflowID, entry.StartedAt.Format(time.RFC3339))
	}

	if len(entries) == 0 {
		fmt.Println("no executions found")
	}

	return nil
}
