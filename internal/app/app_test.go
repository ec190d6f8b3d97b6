package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "sissync.db")
	cfg.Database.MaxOpenConns = 1
	cfg.Database.AutoMigrate = true
	cfg.Database.LogLevel = "silent"
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Timezone = "UTC"
	cfg.Scheduler.ReloadInterval = time.Hour
	cfg.Metrics.Enabled = true
	return cfg
}

func TestNew_WiresRunnableEngine(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Registry)
	require.NotNil(t, a.Trigger)

	result, err := a.Orchestrator.Run(ctx, service.RunRequest{Scope: domain.ScopeRequest{All: true}, TriggeredBy: "test"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Zero(t, result.TotalSchools)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sissync_runs_total")

	def, err := a.ScheduleSvc.Create(ctx, service.ScheduleInput{CronExpression: "0 2 * * *"}, "test")
	require.NoError(t, err)
	require.NoError(t, a.Trigger.Start(ctx))
	t.Cleanup(func() { _ = a.Trigger.Stop(context.Background()) })
	assert.Equal(t, []uint{def.ID}, a.Trigger.Registered())
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_StorageRequiresBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Storage.Enabled = true
	cfg.Storage.Type = "minio"
	cfg.Storage.Endpoint = "localhost:9000"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
