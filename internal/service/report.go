package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
)

// ReportStore is the object storage a ReportArchiver writes to.
type ReportStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// RunReader loads a run with its school rows.
type RunReader interface {
	GetRun(ctx context.Context, runID string, withSchools bool) (*domain.SyncRun, error)
}

// RunReport is the archived JSON document of a finished run.
type RunReport struct {
	Run         *domain.SyncRun `json:"run"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ReportArchiver uploads a JSON report of each finished run to object storage.
// A nil *ReportArchiver archives nothing.
type ReportArchiver struct {
	store  ReportStore
	runs   RunReader
	prefix string
}

// NewReportArchiver creates a new ReportArchiver. It returns nil when store is nil.
func NewReportArchiver(store ReportStore, runs RunReader, prefix string) *ReportArchiver {
	if store == nil {
		return nil
	}
	return &ReportArchiver{store: store, runs: runs, prefix: prefix}
}

// Key returns the object key of run's report.
func (a *ReportArchiver) Key(run *domain.SyncRun) string {
	day := run.CreatedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, run.ID+".json")
}

// Archive uploads the report of runID. Failures are logged, never returned.
func (a *ReportArchiver) Archive(ctx context.Context, runID string) {
	if a == nil {
		return
	}
	if err := a.archive(ctx, runID); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to archive run report")
	}
}

func (a *ReportArchiver) archive(ctx context.Context, runID string) error {
	run, err := a.runs.GetRun(ctx, runID, true)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	body, err := json.MarshalIndent(RunReport{Run: run, GeneratedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	key := a.Key(run)
	if err := a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return err
	}
	logger.CtxDebug(ctx, "Archived run report to %s", key)
	return nil
}
