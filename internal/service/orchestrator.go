package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownEndpoint is returned when an endpoint override names an endpoint the source lacks.
var ErrUnknownEndpoint = connector.ErrUnknownEndpoint

const cancelledReason = "cancelled"

// Track executes the per-system endpoint work of one source.
type Track interface {
	Run(ctx context.Context, in TrackInput) error
}

// RunRequest describes one sync run.
type RunRequest struct {
	Scope        domain.ScopeRequest
	AcademicYear string
	// Endpoints holds per-source overrides; a missing or empty list means the defaults.
	Endpoints   map[domain.Source][]string
	ScheduleID  *uint
	TriggeredBy string
	// RunID continues a run row created earlier by Prepare.
	RunID string
}

// RunResult is the outcome of a finished run.
type RunResult struct {
	RunID        string           `json:"run_id"`
	Status       domain.RunStatus `json:"status"`
	TotalSchools int              `json:"total_schools"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	ErrorSummary string           `json:"error_summary,omitempty"`
}

// OrchestratorConfig holds tunables for the orchestrator.
type OrchestratorConfig struct {
	SummaryLimit int
}

// Orchestrator composes scope resolution, the run ledger and the per-source
// tracks into one run.
type Orchestrator struct {
	resolver     *ScopeResolver
	ledger       RunLedger
	tracks       map[domain.Source]Track
	archiver     *ReportArchiver
	metrics      *SyncMetrics
	summaryLimit int
}

// NewOrchestrator creates a new Orchestrator. archiver and metrics may be nil.
func NewOrchestrator(
	resolver *ScopeResolver,
	ledger RunLedger,
	tracks map[domain.Source]Track,
	archiver *ReportArchiver,
	metrics *SyncMetrics,
	cfg OrchestratorConfig,
) *Orchestrator {
	limit := cfg.SummaryLimit
	if limit <= 0 {
		limit = 5
	}
	return &Orchestrator{
		resolver:     resolver,
		ledger:       ledger,
		tracks:       tracks,
		archiver:     archiver,
		metrics:      metrics,
		summaryLimit: limit,
	}
}

// Prepare validates req and creates its run row in running status.
// Scope and endpoint errors are returned before any row exists.
func (o *Orchestrator) Prepare(ctx context.Context, req RunRequest) (*domain.SyncRun, error) {
	if err := o.resolver.Validate(req.Scope); err != nil {
		return nil, err
	}
	if _, err := resolveEndpoints(req.Endpoints); err != nil {
		return nil, err
	}

	now := time.Now()
	run := &domain.SyncRun{
		ScheduleID:   req.ScheduleID,
		ScopeLabel:   req.Scope.Label(),
		AcademicYear: req.AcademicYear,
		Status:       domain.RunStatusRunning,
		StartedAt:    &now,
		TriggeredBy:  req.TriggeredBy,
	}
	if err := o.ledger.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Run executes a full sync run. ctx is the run's cancellation signal: it is
// checked between steps and never aborts an in-flight call or ledger write.
// Parameters:
//   - ctx: cancellation signal for the run.
//   - req: scope, overrides and provenance; RunID continues a prepared run.
//
// Returns:
//   - *RunResult: final counts and status.
//   - error: a scope or setup failure; the run row, if any, is finalized as failed.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	runID := req.RunID
	if runID == "" {
		run, err := o.Prepare(ctx, req)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}

	ctx = logger.SetRunID(ctx, runID)
	// Ledger writes from here on must land even after cancellation.
	work := context.WithoutCancel(ctx)
	started := time.Now()

	o.metrics.RunStarted()
	result, err := o.execute(ctx, work, runID, req)
	if err != nil {
		o.fail(work, runID, err)
		o.metrics.RunFinished(domain.RunStatusFailed)
		return nil, err
	}
	o.metrics.RunFinished(result.Status)

	logger.With(logger.Fields{
		logger.FieldStatus: result.Status,
		logger.FieldCount:  result.TotalSchools,
		"succeeded":        result.Succeeded,
		"failed":           result.Failed,
	}).WithDuration(time.Since(started).Milliseconds()).Info(work, "Sync run finished")

	o.archiver.Archive(work, runID)
	return result, nil
}

func (o *Orchestrator) execute(ctx, work context.Context, runID string, req RunRequest) (*RunResult, error) {
	endpoints, err := resolveEndpoints(req.Endpoints)
	if err != nil {
		return nil, err
	}

	scope, err := o.resolver.Resolve(work, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scope: %w", err)
	}

	systems := scope.All()
	attempts, err := o.ledger.MaterializeSchoolAttempts(work, runID, systems)
	if err != nil {
		return nil, err
	}
	if err := o.ledger.SetTotalSchools(work, runID, len(attempts)); err != nil {
		return nil, fmt.Errorf("failed to store total schools: %w", err)
	}

	inputs := make(map[domain.Source]*TrackInput, len(domain.Sources))
	for i, attempt := range attempts {
		in, ok := inputs[attempt.Source]
		if !ok {
			in = &TrackInput{RunID: runID, AcademicYear: req.AcademicYear, Endpoints: endpoints[attempt.Source]}
			inputs[attempt.Source] = in
		}
		in.Items = append(in.Items, TrackItem{System: systems[i], AttemptID: attempt.ID})
	}

	logger.With(logger.Fields{logger.FieldCount: len(attempts)}).Info(work, "Sync run scope resolved")

	var g errgroup.Group
	for _, src := range domain.Sources {
		in, ok := inputs[src]
		if !ok {
			continue
		}
		track, ok := o.tracks[src]
		if !ok {
			logger.CtxError(work, "No track configured for source %s; %d systems left pending", src, len(in.Items))
			continue
		}
		g.Go(func() error {
			return track.Run(ctx, *in)
		})
	}
	// Tracks only ever return the cancellation error, which ctx already reports.
	_ = g.Wait()

	total := len(attempts)
	if ctx.Err() != nil {
		return o.finishCancelled(work, runID, total), nil
	}

	succeeded, failed, err := o.ledger.RecomputeCounts(work, runID)
	if err != nil {
		return nil, err
	}

	status := domain.RunStatusCompleted
	if succeeded == 0 && failed > 0 {
		status = domain.RunStatusFailed
	}
	summary := o.errorSummary(work, runID, failed)

	finalized, err := o.ledger.FinalizeRun(work, runID, status, summary)
	if err != nil {
		return nil, err
	}
	if !finalized {
		// Force-cancelled from outside while the tracks were running.
		status = domain.RunStatusCancelled
	}

	return &RunResult{
		RunID:        runID,
		Status:       status,
		TotalSchools: total,
		Succeeded:    succeeded,
		Failed:       failed,
		ErrorSummary: summary,
	}, nil
}

func (o *Orchestrator) finishCancelled(work context.Context, runID string, total int) *RunResult {
	logger.CtxInfo(work, "Sync run cancelled")

	if _, err := o.ledger.SkipUnfinishedAttempts(work, runID, cancelledReason); err != nil {
		logger.FromContext(work).WithError(err).Warn("Failed to skip unfinished attempts")
	}
	succeeded, failed, err := o.ledger.RecomputeCounts(work, runID)
	if err != nil {
		logger.FromContext(work).WithError(err).Warn("Failed to recompute counts")
	}
	if _, err := o.ledger.FinalizeRun(work, runID, domain.RunStatusCancelled, cancelledReason); err != nil {
		logger.FromContext(work).WithError(err).Error("Failed to finalize cancelled run")
	}

	return &RunResult{
		RunID:        runID,
		Status:       domain.RunStatusCancelled,
		TotalSchools: total,
		Succeeded:    succeeded,
		Failed:       failed,
		ErrorSummary: cancelledReason,
	}
}

// fail finalizes a run that could not be set up so it never stays running.
func (o *Orchestrator) fail(work context.Context, runID string, cause error) {
	logger.FromContext(work).WithError(cause).Error("Sync run failed")
	if _, err := o.ledger.SkipUnfinishedAttempts(work, runID, "run failed"); err != nil {
		logger.FromContext(work).WithError(err).Warn("Failed to skip unfinished attempts")
	}
	if _, err := o.ledger.FinalizeRun(work, runID, domain.RunStatusFailed, cause.Error()); err != nil {
		logger.FromContext(work).WithError(err).Error("Failed to finalize failed run")
	}
}

// errorSummary joins the first few per-system errors.
func (o *Orchestrator) errorSummary(ctx context.Context, runID string, failed int) string {
	if failed == 0 {
		return ""
	}
	attempts, err := o.ledger.ListAttemptErrors(ctx, runID, o.summaryLimit)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to list attempt errors")
		return fmt.Sprintf("%d schools failed", failed)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		name := a.SchoolName
		if name == "" {
			name = a.ExternalSchoolID
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, a.ErrorMessage))
	}
	return strings.Join(parts, "; ")
}

// resolveEndpoints resolves the endpoint list of every source.
func resolveEndpoints(overrides map[domain.Source][]string) (map[domain.Source][]string, error) {
	for src := range overrides {
		if _, err := domain.ParseSource(string(src)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownEndpoint, err)
		}
	}
	out := make(map[domain.Source][]string, len(domain.Sources))
	for _, src := range domain.Sources {
		endpoints, err := connector.ResolveEndpoints(src, overrides[src])
		if err != nil {
			return nil, err
		}
		out[src] = endpoints
	}
	return out, nil
}
