// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/timmy/sissync/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB returns a migrated in-memory SQLite database private to the test.
// The pool is pinned to one connection so concurrent writers queue instead of
// failing with "database is locked".
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedNode inserts a node under parent (nil for a root) and returns it.
func SeedNode(t testing.TB, db *gorm.DB, name string, parent *domain.Node) *domain.Node {
	t.Helper()
	node := &domain.Node{Name: name}
	if parent != nil {
		node.ParentID = &parent.ID
	}
	if err := db.Create(node).Error; err != nil {
		t.Fatalf("seed node %s: %v", name, err)
	}
	return node
}

// SeedSystem inserts an active system config and links its school to node when node is non-nil.
func SeedSystem(t testing.TB, db *gorm.DB, source domain.Source, schoolID string, node *domain.Node) *domain.SystemConfig {
	t.Helper()
	sys := &domain.SystemConfig{
		Source:           source,
		Name:             fmt.Sprintf("%s %s", source, schoolID),
		ExternalSchoolID: schoolID,
		Credentials:      domain.Credentials{"token": "secret"},
		IsActive:         true,
	}
	if err := db.Create(sys).Error; err != nil {
		t.Fatalf("seed system %s: %v", schoolID, err)
	}
	if node != nil && schoolID != "" {
		link := &domain.NodeSchool{NodeID: node.ID, Source: source, ExternalSchoolID: schoolID}
		if err := db.Create(link).Error; err != nil {
			t.Fatalf("seed node link %s: %v", schoolID, err)
		}
	}
	return sys
}
