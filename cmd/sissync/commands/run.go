package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/service"
)

type runOptions struct {
	all                bool
	nodes              []uint
	arborConfigs       []uint
	wondeConfigs       []uint
	includeDescendants bool
	academicYear       string
	arborEndpoints     []string
	wondeEndpoints     []string
	triggeredBy        string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync in the foreground",
		Long: `Run one sync run and wait for it to finish. Exactly one of --all, --node
or --arbor-config/--wonde-config selects the scope. Ctrl-C cancels the run;
finished schools keep their results and the rest are marked skipped.`,
		Example: `  sissync run --all --academic-year 2025/26
  sissync run --node 12 --include-descendants --wonde-endpoints students,classes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.all, "all", false, "Sync every active config")
	f.UintSliceVar(&opts.nodes, "node", nil, "Node ids whose schools are synced")
	f.UintSliceVar(&opts.arborConfigs, "arbor-config", nil, "Explicit Arbor config ids")
	f.UintSliceVar(&opts.wondeConfigs, "wonde-config", nil, "Explicit Wonde config ids")
	f.BoolVar(&opts.includeDescendants, "include-descendants", false, "Expand --node to every descendant node")
	f.StringVar(&opts.academicYear, "academic-year", "", "Academic year passed to connectors")
	f.StringSliceVar(&opts.arborEndpoints, "arbor-endpoints", nil, "Subset of Arbor endpoints (default all)")
	f.StringSliceVar(&opts.wondeEndpoints, "wonde-endpoints", nil, "Subset of Wonde endpoints (default all)")
	f.StringVar(&opts.triggeredBy, "triggered-by", "cli", "Principal recorded on the run")
	return cmd
}

func (o *runOptions) request() service.RunRequest {
	req := service.RunRequest{
		Scope: domain.ScopeRequest{
			All:                o.all,
			NodeIDs:            o.nodes,
			IncludeDescendants: o.includeDescendants,
		},
		AcademicYear: o.academicYear,
		Endpoints:    map[domain.Source][]string{},
		TriggeredBy:  o.triggeredBy,
	}
	if len(o.arborConfigs) > 0 || len(o.wondeConfigs) > 0 {
		req.Scope.ConfigIDs = map[domain.Source][]uint{
			domain.SourceArbor: o.arborConfigs,
			domain.SourceWonde: o.wondeConfigs,
		}
	}
	if len(o.arborEndpoints) > 0 {
		req.Endpoints[domain.SourceArbor] = o.arborEndpoints
	}
	if len(o.wondeEndpoints) > 0 {
		req.Endpoints[domain.SourceWonde] = o.wondeEndpoints
	}
	return req
}

func runSync(cmd *cobra.Command, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.SetComponent(ctx, "cli")

	engine, err := loadEngine(context.WithoutCancel(ctx), cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Orchestrator.Run(ctx, opts.request())
	if err != nil {
		return err
	}

	if err := printResult(cmd, result); err != nil {
		return err
	}
	switch result.Status {
	case domain.RunStatusFailed:
		return fmt.Errorf("run %s failed: %s", result.RunID, result.ErrorSummary)
	case domain.RunStatusCancelled:
		return fmt.Errorf("run %s cancelled", result.RunID)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *service.RunResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
