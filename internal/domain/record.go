package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SyncedRecord is one row pulled from an external endpoint, stored as raw JSON.
// Rows are keyed by source, school, endpoint and external id so repeated syncs upsert.
type SyncedRecord struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Source           Source         `gorm:"type:text;not null;uniqueIndex:idx_synced_records_key,priority:1" json:"source"`
	ExternalSchoolID string         `gorm:"type:text;not null;uniqueIndex:idx_synced_records_key,priority:2" json:"external_school_id"`
	Endpoint         string         `gorm:"type:text;not null;uniqueIndex:idx_synced_records_key,priority:3" json:"endpoint"`
	ExternalID       string         `gorm:"type:text;not null;uniqueIndex:idx_synced_records_key,priority:4" json:"external_id"`
	AcademicYear     string         `gorm:"type:text" json:"academic_year,omitempty"`
	Payload          datatypes.JSON `json:"payload"`
	LastRunID        string         `gorm:"type:text;index" json:"last_run_id"`
	SyncedAt         time.Time      `json:"synced_at"`
}

// TableName returns the database table name for SyncedRecord.
func (SyncedRecord) TableName() string {
	return "synced_records"
}

// Models returns every table managed by the application, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Node{},
		&NodeSchool{},
		&SystemConfig{},
		&ScheduleDefinition{},
		&SyncRun{},
		&SyncRunSchool{},
		&SyncedRecord{},
	}
}
