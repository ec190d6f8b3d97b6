package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/service"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("database:\n  driver: sqlite\n  path: %s\n  log_level: silent\nscheduler:\n  timezone: UTC\n",
		filepath.Join(dir, "sissync.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunOptions_Request(t *testing.T) {
	opts := &runOptions{
		wondeConfigs:   []uint{3},
		academicYear:   "2025/26",
		wondeEndpoints: []string{"students"},
		triggeredBy:    "cli",
	}
	req := opts.request()
	assert.Equal(t, domain.ScopeModeExplicit, req.Scope.Mode())
	assert.Equal(t, []uint{3}, req.Scope.ConfigIDs[domain.SourceWonde])
	assert.Equal(t, []string{"students"}, req.Endpoints[domain.SourceWonde])
	_, hasArbor := req.Endpoints[domain.SourceArbor]
	assert.False(t, hasArbor)

	all := (&runOptions{all: true}).request()
	assert.Equal(t, domain.ScopeModeAll, all.Scope.Mode())
	assert.Nil(t, all.Scope.ConfigIDs)
}

func TestRunCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "run", "--config", cfg, "--all")
	require.NoError(t, err)

	var result service.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.NotEmpty(t, result.RunID)

	_, err = execute(t, "run", "--config", cfg)
	assert.ErrorIs(t, err, service.ErrInvalidScope)

	_, err = execute(t, "run", "--config", cfg, "--all", "--arbor-endpoints", "lunch_menus")
	assert.ErrorIs(t, err, service.ErrUnknownEndpoint)
}

func TestSchedulesCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "schedules", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "CRON")
}

func TestPrintSchedules(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)

	require.NoError(t, printSchedules(root, []domain.ScheduleDefinition{
		{ID: 1, Name: "nightly", CronExpression: "0 2 * * *", IsActive: true},
		{ID: 2, Name: "region", CronExpression: "@hourly", NodeIDs: []uint{4, 7}, IncludeDescendants: true},
	}))
	assert.Contains(t, out.String(), "nightly")
	assert.Contains(t, out.String(), "all")
	assert.Contains(t, out.String(), "4,7 (+descendants)")
}
