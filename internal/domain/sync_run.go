package domain

import (
	"time"

	"gorm.io/datatypes"
)

// RunStatus represents the status of a sync run.
// Values include RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed and RunStatusCancelled.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsActive reports whether the run may still make progress.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// AttemptStatus represents the status of one school within a sync run.
type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusRunning   AttemptStatus = "running"
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusSkipped   AttemptStatus = "skipped"
)

// IsTerminal reports whether the attempt will not change status again.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusFailed || s == AttemptStatusSkipped
}

// TriggeredByScheduler tags runs started by the recurring trigger.
const TriggeredByScheduler = "scheduler"

// ScopeAll is the scope label of runs covering every active config.
const ScopeAll = "all"

// SyncRun is the aggregate ledger row of one sync run.
type SyncRun struct {
	ID               string          `gorm:"type:text;primaryKey" json:"id"`
	ScheduleID       *uint           `gorm:"index" json:"schedule_id,omitempty"`
	ScopeLabel       string          `gorm:"type:text;not null" json:"scope"`
	AcademicYear     string          `gorm:"type:text" json:"academic_year,omitempty"`
	Status           RunStatus       `gorm:"type:text;index;default:pending" json:"status"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	TotalSchools     int             `gorm:"default:0" json:"total_schools"`
	SchoolsSucceeded int             `gorm:"default:0" json:"schools_succeeded"`
	SchoolsFailed    int             `gorm:"default:0" json:"schools_failed"`
	TriggeredBy      string          `gorm:"type:text" json:"triggered_by"`
	ErrorSummary     string          `gorm:"type:text" json:"error_summary,omitempty"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Schools          []SyncRunSchool `gorm:"foreignKey:RunID" json:"schools,omitempty"`
}

// TableName returns the database table name for SyncRun.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// EndpointLogEntry records one completed endpoint attempt for a school.
type EndpointLogEntry struct {
	Endpoint    string    `json:"endpoint"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Error       string    `json:"error,omitempty"`
}

// SyncRunSchool is the per-system detail row of a sync run.
type SyncRunSchool struct {
	ID               string                               `gorm:"type:text;primaryKey" json:"id"`
	RunID            string                               `gorm:"type:text;not null;index" json:"run_id"`
	Position         int                                  `gorm:"not null;default:0" json:"position"`
	ExternalSchoolID string                               `gorm:"type:text" json:"external_school_id"`
	Source           Source                               `gorm:"type:text;not null" json:"source"`
	ConfigID         uint                                 `gorm:"not null" json:"config_id"`
	SchoolName       string                               `gorm:"type:text" json:"school_name"`
	Status           AttemptStatus                        `gorm:"type:text;index;default:pending" json:"status"`
	StartedAt        *time.Time                           `json:"started_at,omitempty"`
	CompletedAt      *time.Time                           `json:"completed_at,omitempty"`
	ErrorMessage     string                               `gorm:"type:text" json:"error_message,omitempty"`
	CurrentEndpoint  *string                              `gorm:"type:text" json:"current_endpoint,omitempty"`
	EndpointLog      datatypes.JSONSlice[EndpointLogEntry] `json:"endpoint_log"`
	CreatedAt        time.Time                            `json:"created_at"`
	UpdatedAt        time.Time                            `json:"updated_at"`
}

// TableName returns the database table name for SyncRunSchool.
func (SyncRunSchool) TableName() string {
	return "sync_run_schools"
}
