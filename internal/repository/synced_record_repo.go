package repository

import (
	"context"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncedRecordRepository stores rows pulled by connectors.
type SyncedRecordRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewSyncedRecordRepository creates a new SyncedRecordRepository.
func NewSyncedRecordRepository(db *gorm.DB) *SyncedRecordRepository {
	return &SyncedRecordRepository{db: db, batchSize: 200}
}

// UpsertRecords creates or updates records keyed by source, school, endpoint and external id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: rows to persist.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SyncedRecordRepository) UpsertRecords(ctx context.Context, records []domain.SyncedRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "external_school_id"},
			{Name: "endpoint"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"academic_year", "payload", "last_run_id", "synced_at"}),
	}).CreateInBatches(records, r.batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}
	return nil
}

// CountByEndpoint counts stored rows for one school endpoint.
func (r *SyncedRecordRepository) CountByEndpoint(ctx context.Context, source domain.Source, schoolID, endpoint string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SyncedRecord{}).
		Where("source = ? AND external_school_id = ? AND endpoint = ?", source, schoolID, endpoint).
		Count(&count).Error
	return count, err
}
