package domain

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ScheduleDefinition describes a recurring sync run driven by a cron expression.
// An empty NodeIDs list means the schedule covers every active config.
type ScheduleDefinition struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	Name               string                      `gorm:"type:text" json:"name"`
	NodeIDs            datatypes.JSONSlice[uint]   `json:"node_ids"`
	AcademicYear       string                      `gorm:"type:text" json:"academic_year,omitempty"`
	CronExpression     string                      `gorm:"type:text;not null" json:"cron_expression"`
	ArborEndpoints     datatypes.JSONSlice[string] `json:"arbor_endpoints"`
	WondeEndpoints     datatypes.JSONSlice[string] `json:"wonde_endpoints"`
	IncludeDescendants bool                        `gorm:"not null" json:"include_descendants"`
	IsActive           bool                        `gorm:"not null;index" json:"is_active"`
	CreatedBy          string                      `gorm:"type:text" json:"created_by,omitempty"`
	UpdatedBy          string                      `gorm:"type:text" json:"updated_by,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for ScheduleDefinition.
func (ScheduleDefinition) TableName() string {
	return "sync_schedules"
}

// EndpointOverrides returns the per-source endpoint lists stored on the schedule.
func (s *ScheduleDefinition) EndpointOverrides() map[Source][]string {
	overrides := make(map[Source][]string, 2)
	if len(s.ArborEndpoints) > 0 {
		overrides[SourceArbor] = append([]string(nil), s.ArborEndpoints...)
	}
	if len(s.WondeEndpoints) > 0 {
		overrides[SourceWonde] = append([]string(nil), s.WondeEndpoints...)
	}
	return overrides
}

// Fingerprint identifies the trigger-relevant content of the schedule.
// Two definitions with equal fingerprints fire identical runs at identical times.
func (s *ScheduleDefinition) Fingerprint() string {
	return fmt.Sprintf("%s|%v|%s|%s|%s|%t|%t",
		s.CronExpression,
		[]uint(s.NodeIDs),
		s.AcademicYear,
		strings.Join(s.ArborEndpoints, ","),
		strings.Join(s.WondeEndpoints, ","),
		s.IncludeDescendants,
		s.IsActive,
	)
}
