package domain

import "time"

// Node is a position in the organizational hierarchy (head office, region, school).
type Node struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ParentID  *uint     `gorm:"index" json:"parent_id,omitempty"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Kind      string    `gorm:"type:text" json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Node.
func (Node) TableName() string {
	return "nodes"
}

// NodeSchool registers an external school identifier of one source against a node.
type NodeSchool struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	NodeID           uint   `gorm:"not null;uniqueIndex:idx_node_schools_link,priority:1" json:"node_id"`
	Source           Source `gorm:"type:text;not null;uniqueIndex:idx_node_schools_link,priority:2" json:"source"`
	ExternalSchoolID string `gorm:"type:text;not null;uniqueIndex:idx_node_schools_link,priority:3" json:"external_school_id"`
}

// TableName returns the database table name for NodeSchool.
func (NodeSchool) TableName() string {
	return "node_schools"
}
