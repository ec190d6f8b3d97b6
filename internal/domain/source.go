package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source identifies one of the external student-information APIs.
// Values include SourceArbor and SourceWonde.
type Source string

const (
	SourceArbor Source = "arbor"
	SourceWonde Source = "wonde"
)

// Sources lists every supported source in materialization order.
var Sources = []Source{SourceArbor, SourceWonde}

// ParseSource converts a raw string into a known Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceArbor, SourceWonde:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Credentials is the opaque credential payload of a system config, stored as JSON.
type Credentials map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (c Credentials) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *Credentials) Scan(value interface{}) error {
	if value == nil {
		*c = Credentials{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Credentials")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// String returns the credential value for key, or "" when absent or not a string.
func (c Credentials) String(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SystemConfig is one external account for a source, tied to exactly one external school.
type SystemConfig struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	Source           Source      `gorm:"type:text;not null;index:idx_system_configs_source_school,priority:1" json:"source"`
	Name             string      `gorm:"type:text;not null" json:"name"`
	ExternalSchoolID string      `gorm:"type:text;index:idx_system_configs_source_school,priority:2" json:"external_school_id"`
	Credentials      Credentials `gorm:"type:text" json:"-"`
	IsActive         bool        `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName returns the database table name for SystemConfig.
func (SystemConfig) TableName() string {
	return "system_configs"
}
