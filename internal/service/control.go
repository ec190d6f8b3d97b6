package service

import (
	"context"
	"errors"
	"sync"

	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/repository"
	"gorm.io/gorm"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("sync run not found")
	// ErrRunNotActive is returned when cancelling a run that is not pending or running.
	ErrRunNotActive = errors.New("sync run is not pending/running")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// TriggerResult is returned by TriggerRun once the run row exists.
type TriggerResult struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// SyncService is the control surface over sync runs.
type SyncService struct {
	orchestrator *Orchestrator
	runs         *repository.SyncRunRepository
	registry     *CancelRegistry
	wg           sync.WaitGroup
}

// NewSyncService creates a new SyncService.
func NewSyncService(orchestrator *Orchestrator, runs *repository.SyncRunRepository, registry *CancelRegistry) *SyncService {
	return &SyncService{
		orchestrator: orchestrator,
		runs:         runs,
		registry:     registry,
	}
}

// TriggerRun creates the run row synchronously and executes the run in the background.
// The background run keeps ctx's values but not its cancellation; it stops
// only through CancelRun.
// Parameters:
//   - ctx: request context.
//   - req: scope, academic year and overrides.
//
// Returns:
//   - *TriggerResult: the new run id with status "started".
//   - error: ErrInvalidScope, ErrUnknownEndpoint, or a storage error.
func (s *SyncService) TriggerRun(ctx context.Context, req RunRequest) (*TriggerResult, error) {
	run, err := s.orchestrator.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	req.RunID = run.ID

	runCtx, cancel := context.WithCancel(logger.SetRunID(context.WithoutCancel(ctx), run.ID))
	s.registry.Register(run.ID, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.registry.Remove(run.ID)
		defer cancel()

		if _, err := s.orchestrator.Run(runCtx, req); err != nil {
			logger.FromContext(runCtx).WithError(err).Error("Background sync run failed")
		}
	}()

	logger.CtxInfo(runCtx, "Sync run started (scope %s)", run.ScopeLabel)
	return &TriggerResult{RunID: run.ID, Status: "started"}, nil
}

// CancelRun signals a live run, or force-marks the ledger when this process
// holds no handle for it.
func (s *SyncService) CancelRun(ctx context.Context, runID string) error {
	if s.registry.Cancel(runID) {
		logger.CtxInfo(ctx, "Cancellation signalled for run %s", runID)
		return nil
	}

	cancelled, err := s.runs.ForceCancel(ctx, runID)
	if err != nil {
		return err
	}
	if cancelled {
		logger.CtxInfo(ctx, "Run %s force-cancelled in ledger", runID)
		return nil
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}
	return ErrRunNotActive
}

// ListRuns returns runs matching filter plus the total count.
func (s *SyncService) ListRuns(ctx context.Context, filter repository.RunFilter) ([]domain.SyncRun, int64, error) {
	filter.Limit, filter.Offset = NormalizePage(filter.Limit, filter.Offset)
	return s.runs.ListRuns(ctx, filter)
}

// GetRun returns a run with its school rows.
func (s *SyncService) GetRun(ctx context.Context, runID string) (*domain.SyncRun, error) {
	run, err := s.runs.GetRun(ctx, runID, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRunSchools pages through a run's school rows.
func (s *SyncService) ListRunSchools(ctx context.Context, runID string, limit, offset int) ([]domain.SyncRunSchool, int64, error) {
	if _, err := s.runs.GetRun(ctx, runID, false); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrRunNotFound
		}
		return nil, 0, err
	}
	limit, offset = NormalizePage(limit, offset)
	return s.runs.ListRunSchools(ctx, runID, limit, offset)
}

// Wait blocks until every background run started by TriggerRun has returned.
func (s *SyncService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels every background run and waits for them to finalize,
// giving up when ctx is done.
func (s *SyncService) Shutdown(ctx context.Context) error {
	if n := s.registry.CancelAll(); n > 0 {
		logger.CtxInfo(ctx, "Cancelling %d in-flight sync runs", n)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizePage applies the default and maximum page size and clamps a
// negative offset to zero.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
