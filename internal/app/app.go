// Package app wires configuration, storage, connectors and services into a
// runnable sync engine shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/connector/arbor"
	"github.com/timmy/sissync/internal/connector/wonde"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/repository"
	"github.com/timmy/sissync/internal/service"
	"github.com/timmy/sissync/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Runs         *repository.SyncRunRepository
	Schedules    *repository.ScheduleRepository
	Orchestrator *service.Orchestrator
	Sync         *service.SyncService
	ScheduleSvc  *service.ScheduleService
	Trigger      *service.RecurringTrigger
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
}

// New connects to the database and builds every service. The recurring
// trigger is created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a, err := build(ctx, cfg, db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	var err error
	a := &App{
		Config:    cfg,
		DB:        db,
		Runs:      repository.NewSyncRunRepository(db),
		Schedules: repository.NewScheduleRepository(db),
	}

	var metrics *service.SyncMetrics
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = service.NewSyncMetrics(a.Registry); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	archiver, err := newArchiver(ctx, cfg.Storage, a.Runs)
	if err != nil {
		return nil, err
	}

	records := repository.NewSyncedRecordRepository(db)
	tracks := map[domain.Source]service.Track{
		domain.SourceArbor: service.NewSerialTrack(
			arbor.NewFactory(cfg.Sources.Arbor, records), a.Runs, metrics, cfg.Sync.ErrorMaxLength),
		domain.SourceWonde: service.NewPipelineTrack(
			domain.SourceWonde, wonde.NewClient(cfg.Sources.Wonde, records), a.Runs, metrics, cfg.Sync.ErrorMaxLength),
	}

	resolver := service.NewScopeResolver(repository.NewNodeRepository(db), repository.NewSystemConfigRepository(db))
	a.Orchestrator = service.NewOrchestrator(resolver, a.Runs, tracks, archiver, metrics, service.OrchestratorConfig{
		SummaryLimit: cfg.Sync.SummaryLimit,
	})
	a.Sync = service.NewSyncService(a.Orchestrator, a.Runs, service.NewCancelRegistry())

	a.Trigger, err = service.NewRecurringTrigger(a.Schedules, a.Orchestrator, cfg.Scheduler)
	if err != nil {
		return nil, fmt.Errorf("failed to create recurring trigger: %w", err)
	}
	a.ScheduleSvc = service.NewScheduleService(a.Schedules, a.Trigger)

	return a, nil
}

func newArchiver(ctx context.Context, cfg config.StorageConfig, runs *repository.SyncRunRepository) (*service.ReportArchiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
	}

	logger.CtxInfo(ctx, "Run reports archived to bucket %s under %q", cfg.Bucket, cfg.Prefix)
	return service.NewReportArchiver(store, runs, cfg.Prefix), nil
}

// Close releases the database handle.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
