package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/service"
)

func newSchedulesCmd() *cobra.Command {
	var showInactive bool
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List recurring sync schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			engine, err := loadEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			var defs []domain.ScheduleDefinition
			if showInactive {
				defs, err = engine.Schedules.List(ctx)
			} else {
				defs, err = engine.Schedules.ListActive(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}
			return printSchedules(cmd, defs)
		},
	}
	cmd.Flags().BoolVar(&showInactive, "inactive", false, "Include inactive schedules")
	return cmd
}

func printSchedules(cmd *cobra.Command, defs []domain.ScheduleDefinition) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCRON\tSCOPE\tACTIVE")
	for _, def := range defs {
		scope := service.ScheduleScope(def)
		label := scope.Label()
		if scope.IncludeDescendants {
			label += " (+descendants)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", def.ID, def.Name, def.CronExpression, label, def.IsActive)
	}
	return w.Flush()
}
