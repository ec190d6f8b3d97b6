package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "Europe/London", cfg.Scheduler.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ReloadInterval)
	assert.Equal(t, 1000, cfg.Sync.ErrorMaxLength)
	assert.Equal(t, 5, cfg.Sync.SummaryLimit)
	assert.Equal(t, 3, cfg.Sources.Wonde.MaxRetries)
}

func TestLoad_SchedulerEnv(t *testing.T) {
	t.Setenv("SYNC_SCHEDULER_ENABLED", "false")
	t.Setenv("SYNC_SCHEDULER_TIMEZONE", "UTC")

	cfg, err := Load(writeConfig(t, "scheduler:\n  timezone: Europe/Paris\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	_, err := Load(writeConfig(t, "scheduler:\n  timezone: Mars/Olympus\n"))
	require.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "sis", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=sis sslmode=disable", pg.DSN())

	pg.URL = "postgres://u:p@db/sis"
	assert.Equal(t, "postgres://u:p@db/sis", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.db"}
	assert.Equal(t, "./data/x.db?_busy_timeout=5000", lite.DSN())
}
