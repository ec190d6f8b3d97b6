package service

import (
	"context"
	"errors"
	"strings"

	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrScheduleNotFound is returned when no schedule has the requested id.
var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleInput holds the editable fields of a schedule.
type ScheduleInput struct {
	Name               string   `json:"name"`
	NodeIDs            []uint   `json:"node_ids"`
	AcademicYear       string   `json:"academic_year"`
	CronExpression     string   `json:"cron_expression" binding:"required"`
	ArborEndpoints     []string `json:"arbor_endpoints"`
	WondeEndpoints     []string `json:"wonde_endpoints"`
	IncludeDescendants bool     `json:"include_descendants"`
	IsActive           *bool    `json:"is_active"`
}

// scheduleReloader is satisfied by *RecurringTrigger.
type scheduleReloader interface {
	Reload(ctx context.Context) error
}

// ScheduleService administers recurring schedules and keeps the trigger in step.
type ScheduleService struct {
	repo    *repository.ScheduleRepository
	trigger scheduleReloader
}

// NewScheduleService creates a new ScheduleService. trigger may be nil.
func NewScheduleService(repo *repository.ScheduleRepository, trigger scheduleReloader) *ScheduleService {
	return &ScheduleService{repo: repo, trigger: trigger}
}

// List returns every schedule.
func (s *ScheduleService) List(ctx context.Context) ([]domain.ScheduleDefinition, error) {
	return s.repo.List(ctx)
}

// Get returns one schedule.
func (s *ScheduleService) Get(ctx context.Context, id uint) (*domain.ScheduleDefinition, error) {
	def, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	return def, err
}

// Create validates and stores a new schedule. New schedules are active unless
// the input says otherwise.
func (s *ScheduleService) Create(ctx context.Context, in ScheduleInput, principal string) (*domain.ScheduleDefinition, error) {
	def := &domain.ScheduleDefinition{IsActive: true, CreatedBy: principal, UpdatedBy: principal}
	apply(def, in)
	if err := validateSchedule(def); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return nil, err
	}
	s.reload(ctx)
	return def, nil
}

// Update replaces the editable fields of schedule id.
func (s *ScheduleService) Update(ctx context.Context, id uint, in ScheduleInput, principal string) (*domain.ScheduleDefinition, error) {
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(def, in)
	def.UpdatedBy = principal
	if err := validateSchedule(def); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, err
	}
	s.reload(ctx)
	return def, nil
}

// Delete removes schedule id; its historical runs are kept and detached.
func (s *ScheduleService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScheduleNotFound
		}
		return err
	}
	s.reload(ctx)
	return nil
}

func (s *ScheduleService) reload(ctx context.Context) {
	if s.trigger == nil {
		return
	}
	if err := s.trigger.Reload(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Trigger reload after schedule change failed")
	}
}

func apply(def *domain.ScheduleDefinition, in ScheduleInput) {
	def.Name = in.Name
	def.NodeIDs = datatypes.JSONSlice[uint](append([]uint{}, in.NodeIDs...))
	def.AcademicYear = in.AcademicYear
	def.CronExpression = strings.TrimSpace(in.CronExpression)
	def.ArborEndpoints = datatypes.JSONSlice[string](append([]string{}, in.ArborEndpoints...))
	def.WondeEndpoints = datatypes.JSONSlice[string](append([]string{}, in.WondeEndpoints...))
	def.IncludeDescendants = in.IncludeDescendants
	if in.IsActive != nil {
		def.IsActive = *in.IsActive
	}
}

func validateSchedule(def *domain.ScheduleDefinition) error {
	if _, err := ParseCron(def.CronExpression); err != nil {
		return err
	}
	if _, err := connector.ResolveEndpoints(domain.SourceArbor, def.ArborEndpoints); err != nil {
		return err
	}
	if _, err := connector.ResolveEndpoints(domain.SourceWonde, def.WondeEndpoints); err != nil {
		return err
	}
	return nil
}
