package repository

import (
	"context"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
	"gorm.io/gorm"
)

// ScheduleRepository handles recurring schedule definitions.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Ping verifies the schedule store is reachable.
func (r *ScheduleRepository) Ping(ctx context.Context) error {
	return Ping(ctx, r.db)
}

// Create inserts a new schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *domain.ScheduleDefinition) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// Update saves every column of an existing schedule.
func (r *ScheduleRepository) Update(ctx context.Context, s *domain.ScheduleDefinition) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// GetByID retrieves a schedule by id; a missing row returns gorm.ErrRecordNotFound.
func (r *ScheduleRepository) GetByID(ctx context.Context, id uint) (*domain.ScheduleDefinition, error) {
	var s domain.ScheduleDefinition
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns every schedule, newest first.
func (r *ScheduleRepository) List(ctx context.Context) ([]domain.ScheduleDefinition, error) {
	var schedules []domain.ScheduleDefinition
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// ListActive returns every active schedule.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]domain.ScheduleDefinition, error) {
	var schedules []domain.ScheduleDefinition
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return schedules, nil
}

// Delete removes a schedule and detaches historical runs from it in one transaction.
func (r *ScheduleRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearScheduleReference(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&domain.ScheduleDefinition{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete schedule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
