package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
)

// RunLedger is the persisted run state the orchestrator and tracks write to.
// *repository.SyncRunRepository implements it.
type RunLedger interface {
	CreateRun(ctx context.Context, run *domain.SyncRun) error
	MaterializeSchoolAttempts(ctx context.Context, runID string, systems []domain.SystemConfig) ([]domain.SyncRunSchool, error)
	SetTotalSchools(ctx context.Context, runID string, total int) error
	MarkSchoolRunning(ctx context.Context, attemptID string) error
	MarkSchoolCompleted(ctx context.Context, attemptID string) error
	MarkSchoolFailed(ctx context.Context, attemptID, message string) error
	MarkSchoolSkipped(ctx context.Context, attemptID, reason string) error
	AppendEndpointLogEntry(ctx context.Context, attemptID string, entry domain.EndpointLogEntry) error
	SetCurrentEndpoint(ctx context.Context, attemptID string, endpoint *string) error
	RecomputeCounts(ctx context.Context, runID string) (succeeded, failed int, err error)
	FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, errorSummary string) (bool, error)
	SkipUnfinishedAttempts(ctx context.Context, runID, reason string) (int64, error)
	ListAttemptErrors(ctx context.Context, runID string, limit int) ([]domain.SyncRunSchool, error)
}

// TrackItem is one system to sync together with its attempt row.
type TrackItem struct {
	System    domain.SystemConfig
	AttemptID string
}

// TrackInput is the work handed to a track: every item runs every endpoint.
type TrackInput struct {
	RunID        string
	AcademicYear string
	Items        []TrackItem
	Endpoints    []string
}

// progress wraps ledger writes made while a track executes. Failures are
// logged and swallowed; a step never fails because its progress row could not be written.
type progress struct {
	ledger RunLedger
}

func (p progress) warn(ctx context.Context, op, attemptID string, err error) {
	if err == nil {
		return
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		"attempt_id": attemptID,
		"op":         op,
	}).WithError(err).Warn("Ledger update failed")
}

func (p progress) running(ctx context.Context, attemptID string) {
	p.warn(ctx, "mark_running", attemptID, p.ledger.MarkSchoolRunning(ctx, attemptID))
}

// completed and failed refresh the run's counts after the transition so
// readers see progress while the run is still going.
func (p progress) completed(ctx context.Context, runID, attemptID string) {
	p.warn(ctx, "mark_completed", attemptID, p.ledger.MarkSchoolCompleted(ctx, attemptID))
	p.counts(ctx, runID, attemptID)
}

func (p progress) failed(ctx context.Context, runID, attemptID, message string) {
	p.warn(ctx, "mark_failed", attemptID, p.ledger.MarkSchoolFailed(ctx, attemptID, message))
	p.counts(ctx, runID, attemptID)
}

func (p progress) counts(ctx context.Context, runID, attemptID string) {
	_, _, err := p.ledger.RecomputeCounts(ctx, runID)
	p.warn(ctx, "recompute_counts", attemptID, err)
}

func (p progress) current(ctx context.Context, attemptID string, endpoint *string) {
	p.warn(ctx, "set_current_endpoint", attemptID, p.ledger.SetCurrentEndpoint(ctx, attemptID, endpoint))
}

func (p progress) logStep(ctx context.Context, attemptID, endpoint string, started time.Time, message string) {
	entry := domain.EndpointLogEntry{
		Endpoint:    endpoint,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Error:       message,
	}
	p.warn(ctx, "append_endpoint_log", attemptID, p.ledger.AppendEndpointLogEntry(ctx, attemptID, entry))
}

// truncateError bounds an error message for storage.
func truncateError(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if max <= 0 || len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
