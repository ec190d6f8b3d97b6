package repository

import (
	"context"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
	"gorm.io/gorm"
)

// SystemConfigRepository reads external system configurations.
type SystemConfigRepository struct {
	db *gorm.DB
}

// NewSystemConfigRepository creates a new SystemConfigRepository.
func NewSystemConfigRepository(db *gorm.DB) *SystemConfigRepository {
	return &SystemConfigRepository{db: db}
}

// withSchool restricts a query to configs carrying an external school id.
func withSchool(q *gorm.DB) *gorm.DB {
	return q.Where("external_school_id IS NOT NULL AND external_school_id <> ''")
}

// GetByIDs returns the configs of source with the given ids. Unknown ids are ignored.
func (r *SystemConfigRepository) GetByIDs(ctx context.Context, source domain.Source, ids []uint) ([]domain.SystemConfig, error) {
	if len(ids) == 0 {
		return []domain.SystemConfig{}, nil
	}
	var configs []domain.SystemConfig
	if err := withSchool(r.db.WithContext(ctx)).
		Where("source = ? AND id IN ?", source, ids).
		Order("id").
		Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to get %s configs by ids: %w", source, err)
	}
	return configs, nil
}

// ListActive returns every active config of source.
func (r *SystemConfigRepository) ListActive(ctx context.Context, source domain.Source) ([]domain.SystemConfig, error) {
	var configs []domain.SystemConfig
	if err := withSchool(r.db.WithContext(ctx)).
		Where("source = ? AND is_active = ?", source, true).
		Order("id").
		Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active %s configs: %w", source, err)
	}
	return configs, nil
}

// ListActiveBySchoolIDs returns active configs of source whose school is in schoolIDs.
func (r *SystemConfigRepository) ListActiveBySchoolIDs(ctx context.Context, source domain.Source, schoolIDs []string) ([]domain.SystemConfig, error) {
	if len(schoolIDs) == 0 {
		return []domain.SystemConfig{}, nil
	}
	var configs []domain.SystemConfig
	if err := withSchool(r.db.WithContext(ctx)).
		Where("source = ? AND is_active = ? AND external_school_id IN ?", source, true, schoolIDs).
		Order("id").
		Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s configs by school: %w", source, err)
	}
	return configs, nil
}
