// Package commands provides the sissync command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/sissync/internal/app"
	"github.com/timmy/sissync/internal/config"
)

// NewRootCmd creates the root command with its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sissync",
		Short:         "Student information sync engine",
		Long:          `sissync pulls student, staff and timetable data from Arbor and Wonde into the central store.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("config", "", "Path to config file (defaults to CONFIG_PATH or ./configs/config.yaml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newSchedulesCmd())
	return root
}

// loadEngine reads the configuration named by --config and wires the engine.
// The recurring trigger is never started from the CLI.
func loadEngine(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Scheduler.Enabled = false
	cfg.Metrics.Enabled = false

	return app.New(ctx, cfg)
}
