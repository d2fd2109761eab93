// Package main provides the loom CLI: run workflows, validate graph
// definitions and list known executions.
package main

import (
	"context"
	"os"

	"github.com/loomworks/loom/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("cli")

	cmd := &cli.Command{
		Name:                  "loom",
		Usage:                 "Run and manage workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for execution state and checkpoints",
				Value:   "./data",
				Sources: cli.EnvVars("LOOM_DATA_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Run a workflow definition to completion",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Workflow definition file (YAML or JSON)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "input",
						Usage: "Initial input data as a JSON object",
						Value: "{}",
					},
					&cli.StringFlag{
						Name:    "event-bus",
						Usage:   "Event bus provider (gochannel, kafka)",
						Value:   "gochannel",
						Sources: cli.EnvVars("LOOM_EVENT_BUS"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runWorkflow(ctx, command)
				},
			},
			{
				Name:    "validate",
				Aliases: []string{"v"},
				Usage:   "Validate a workflow definition without running it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Workflow definition file (YAML or JSON)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return validateWorkflow(command)
				},
			},
			{
				Name:    "executions",
				Aliases: []string{"e"},
				Usage:   "List known executions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Usage: "Only list executions for this user",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return listExecutions(command)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
