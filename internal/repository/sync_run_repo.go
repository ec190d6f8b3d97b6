package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/sissync/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var activeRunStatuses = []domain.RunStatus{domain.RunStatusPending, domain.RunStatusRunning}

var openAttemptStatuses = []domain.AttemptStatus{domain.AttemptStatusPending, domain.AttemptStatusRunning}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status      domain.RunStatus
	ScheduleID  *uint
	TriggeredBy string
	Limit       int
	Offset      int
}

// SyncRunRepository is the run ledger: the sync_runs aggregate rows and their
// sync_run_schools detail rows. Every write is an independent row update; run
// counts are always recomputed from the attempt rows, never incremented.
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new SyncRunRepository.
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// CreateRun inserts a run row, assigning an id when the run has none.
func (r *SyncRunRepository) CreateRun(ctx context.Context, run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// MaterializeSchoolAttempts creates one pending attempt row per system, in order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - runID: parent run id.
//   - systems: resolved systems, in the order they will be processed.
//
// Returns:
//   - []domain.SyncRunSchool: created attempts, aligned with systems.
//   - error: non-nil if the insert fails.
func (r *SyncRunRepository) MaterializeSchoolAttempts(ctx context.Context, runID string, systems []domain.SystemConfig) ([]domain.SyncRunSchool, error) {
	attempts := make([]domain.SyncRunSchool, len(systems))
	for i, sys := range systems {
		attempts[i] = domain.SyncRunSchool{
			ID:               uuid.New().String(),
			RunID:            runID,
			Position:         i,
			ExternalSchoolID: sys.ExternalSchoolID,
			Source:           sys.Source,
			ConfigID:         sys.ID,
			SchoolName:       sys.Name,
			Status:           domain.AttemptStatusPending,
			EndpointLog:      datatypes.JSONSlice[domain.EndpointLogEntry]{},
		}
	}
	if len(attempts) == 0 {
		return attempts, nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(attempts, 100).Error; err != nil {
		return nil, fmt.Errorf("failed to create school attempts: %w", err)
	}
	return attempts, nil
}

// SetTotalSchools persists the resolved scope size on the run.
func (r *SyncRunRepository) SetTotalSchools(ctx context.Context, runID string, total int) error {
	return r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Where("id = ?", runID).
		Update("total_schools", total).Error
}

// MarkSchoolRunning moves a pending attempt to running.
func (r *SyncRunRepository) MarkSchoolRunning(ctx context.Context, attemptID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.SyncRunSchool{}).
		Where("id = ? AND status = ?", attemptID, domain.AttemptStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.AttemptStatusRunning,
			"started_at": now,
		}).Error
}

// MarkSchoolCompleted finishes an open attempt successfully.
func (r *SyncRunRepository) MarkSchoolCompleted(ctx context.Context, attemptID string) error {
	return r.finishAttempt(ctx, attemptID, domain.AttemptStatusCompleted, "")
}

// MarkSchoolFailed finishes an open attempt with an error message.
func (r *SyncRunRepository) MarkSchoolFailed(ctx context.Context, attemptID, message string) error {
	return r.finishAttempt(ctx, attemptID, domain.AttemptStatusFailed, message)
}

// MarkSchoolSkipped finishes an open attempt without running it to the end.
func (r *SyncRunRepository) MarkSchoolSkipped(ctx context.Context, attemptID, reason string) error {
	return r.finishAttempt(ctx, attemptID, domain.AttemptStatusSkipped, reason)
}

// finishAttempt only touches pending or running rows so a force-cancel from
// another process is never overwritten.
func (r *SyncRunRepository) finishAttempt(ctx context.Context, attemptID string, status domain.AttemptStatus, message string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncRunSchool{}).
		Where("id = ? AND status IN ?", attemptID, openAttemptStatuses).
		Updates(map[string]interface{}{
			"status":           status,
			"completed_at":     time.Now(),
			"error_message":    message,
			"current_endpoint": nil,
		}).Error
}

// AppendEndpointLogEntry appends one entry to the attempt's ordered endpoint log.
func (r *SyncRunRepository) AppendEndpointLogEntry(ctx context.Context, attemptID string, entry domain.EndpointLogEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt domain.SyncRunSchool
		if err := tx.Select("id", "endpoint_log").First(&attempt, "id = ?", attemptID).Error; err != nil {
			return err
		}
		log := append(attempt.EndpointLog, entry)
		return tx.Model(&domain.SyncRunSchool{}).
			Where("id = ?", attemptID).
			Update("endpoint_log", log).Error
	})
}

// SetCurrentEndpoint records live progress; nil clears it.
func (r *SyncRunRepository) SetCurrentEndpoint(ctx context.Context, attemptID string, endpoint *string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncRunSchool{}).
		Where("id = ?", attemptID).
		Update("current_endpoint", endpoint).Error
}

// RecomputeCounts derives succeeded/failed counts from the attempt rows and
// stores them on the run in a single UPDATE.
func (r *SyncRunRepository) RecomputeCounts(ctx context.Context, runID string) (succeeded, failed int, err error) {
	const countByStatus = "(SELECT COUNT(*) FROM sync_run_schools WHERE run_id = ? AND status = ?)"
	err = r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"schools_succeeded": gorm.Expr(countByStatus, runID, string(domain.AttemptStatusCompleted)),
			"schools_failed":    gorm.Expr(countByStatus, runID, string(domain.AttemptStatusFailed)),
		}).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to store run counts: %w", err)
	}

	var run domain.SyncRun
	if err := r.db.WithContext(ctx).
		Select("schools_succeeded", "schools_failed").
		First(&run, "id = ?", runID).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to read run counts: %w", err)
	}
	return run.SchoolsSucceeded, run.SchoolsFailed, nil
}

// FinalizeRun moves an active run to a terminal status. A run that is no longer
// active (for example force-cancelled) keeps its status; finalized reports which.
func (r *SyncRunRepository) FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, errorSummary string) (finalized bool, err error) {
	res := r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Where("id = ? AND status IN ?", runID, activeRunStatuses).
		Updates(map[string]interface{}{
			"status":        status,
			"completed_at":  time.Now(),
			"error_summary": errorSummary,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finalize run: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SkipUnfinishedAttempts marks every pending or running attempt of the run as skipped.
func (r *SyncRunRepository) SkipUnfinishedAttempts(ctx context.Context, runID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.SyncRunSchool{}).
		Where("run_id = ? AND status IN ?", runID, openAttemptStatuses).
		Updates(map[string]interface{}{
			"status":           domain.AttemptStatusSkipped,
			"completed_at":     time.Now(),
			"error_message":    reason,
			"current_endpoint": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to skip unfinished attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ForceCancel marks an active run cancelled and its open attempts skipped.
// It reports false when the run exists but is no longer pending or running.
func (r *SyncRunRepository) ForceCancel(ctx context.Context, runID string) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.SyncRun{}).
			Where("id = ? AND status IN ?", runID, activeRunStatuses).
			Updates(map[string]interface{}{
				"status":        domain.RunStatusCancelled,
				"completed_at":  time.Now(),
				"error_summary": "cancelled",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		cancelled = true
		return tx.Model(&domain.SyncRunSchool{}).
			Where("run_id = ? AND status IN ?", runID, openAttemptStatuses).
			Updates(map[string]interface{}{
				"status":           domain.AttemptStatusSkipped,
				"completed_at":     time.Now(),
				"error_message":    "cancelled",
				"current_endpoint": nil,
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to force-cancel run: %w", err)
	}
	return cancelled, nil
}

// GetRun retrieves a run by id, optionally with its school rows in materialization order.
func (r *SyncRunRepository) GetRun(ctx context.Context, runID string, withSchools bool) (*domain.SyncRun, error) {
	q := r.db.WithContext(ctx)
	if withSchools {
		q = q.Preload("Schools", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		})
	}
	var run domain.SyncRun
	if err := q.First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs matching filter, newest first, plus the total match count.
func (r *SyncRunRepository) ListRuns(ctx context.Context, filter RunFilter) ([]domain.SyncRun, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.SyncRun{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ScheduleID != nil {
		q = q.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.TriggeredBy != "" {
		q = q.Where("triggered_by = ?", filter.TriggeredBy)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	var runs []domain.SyncRun
	if err := q.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}

// ListRunSchools pages through a run's school rows in materialization order.
func (r *SyncRunRepository) ListRunSchools(ctx context.Context, runID string, limit, offset int) ([]domain.SyncRunSchool, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.SyncRunSchool{}).Where("run_id = ?", runID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count run schools: %w", err)
	}

	var schools []domain.SyncRunSchool
	if err := q.Order("position").Limit(limit).Offset(offset).Find(&schools).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list run schools: %w", err)
	}
	return schools, total, nil
}

// ListAttemptErrors returns up to limit failed attempts of the run, earliest failure first.
func (r *SyncRunRepository) ListAttemptErrors(ctx context.Context, runID string, limit int) ([]domain.SyncRunSchool, error) {
	var failed []domain.SyncRunSchool
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND status = ? AND error_message <> ''", runID, domain.AttemptStatusFailed).
		Order("completed_at, position").
		Limit(limit).
		Find(&failed).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempt errors: %w", err)
	}
	return failed, nil
}

// ClearScheduleReference detaches historical runs from a schedule.
func (r *SyncRunRepository) ClearScheduleReference(ctx context.Context, scheduleID uint) error {
	return clearScheduleReference(r.db.WithContext(ctx), scheduleID)
}

func clearScheduleReference(db *gorm.DB, scheduleID uint) error {
	if err := db.Model(&domain.SyncRun{}).
		Where("schedule_id = ?", scheduleID).
		Update("schedule_id", nil).Error; err != nil {
		return fmt.Errorf("failed to clear schedule reference: %w", err)
	}
	return nil
}
