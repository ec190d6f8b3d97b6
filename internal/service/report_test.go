package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/testutil"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryStore) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

func TestReportArchiver_UploadsFinishedRun(t *testing.T) {
	h := newHarness(t)
	testutil.SeedSystem(t, h.db, domain.SourceWonde, "W1", nil)

	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	archiver := NewReportArchiver(store, h.runs, "runs")
	orch := NewOrchestrator(h.resolver, h.runs, h.orch.tracks, archiver, nil, OrchestratorConfig{})

	result, err := orch.Run(context.Background(), RunRequest{Scope: domain.ScopeRequest{All: true}})
	require.NoError(t, err)

	require.Len(t, store.objects, 1)
	for key, body := range store.objects {
		assert.True(t, strings.HasPrefix(key, "runs/"))
		assert.True(t, strings.HasSuffix(key, result.RunID+".json"))
		assert.Equal(t, "application/json", store.types[key])

		var report RunReport
		require.NoError(t, json.Unmarshal(body, &report))
		assert.Equal(t, result.RunID, report.Run.ID)
		assert.Equal(t, domain.RunStatusCompleted, report.Run.Status)
		assert.Len(t, report.Run.Schools, 1)
	}
}

func TestReportArchiver_FailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	store := &memoryStore{err: errors.New("bucket missing")}
	archiver := NewReportArchiver(store, h.runs, "runs")
	orch := NewOrchestrator(h.resolver, h.runs, h.orch.tracks, archiver, nil, OrchestratorConfig{})

	result, err := orch.Run(context.Background(), RunRequest{Scope: domain.ScopeRequest{All: true}})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
}

func TestReportArchiver_NilIsNoop(t *testing.T) {
	var archiver *ReportArchiver
	assert.Nil(t, NewReportArchiver(nil, nil, "runs"))
	assert.NotPanics(t, func() { archiver.Archive(context.Background(), "run") })
}

func TestSyncMetrics(t *testing.T) {
	var nilMetrics *SyncMetrics
	assert.NotPanics(t, func() {
		nilMetrics.RunStarted()
		nilMetrics.RunFinished(domain.RunStatusCompleted)
		nilMetrics.RecordAttempt(domain.SourceArbor, domain.AttemptStatusFailed)
		nilMetrics.RecordStep(domain.SourceArbor, "staff", 0, true)
	})

	m, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	reg := prometheus.NewRegistry()
	m, err = NewSyncMetrics(reg)
	require.NoError(t, err)

	h := newHarness(t)
	testutil.SeedSystem(t, h.db, domain.SourceWonde, "W1", nil)
	orch := NewOrchestrator(h.resolver, h.runs, h.orch.tracks, nil, m, OrchestratorConfig{})
	_, err = orch.Run(context.Background(), RunRequest{Scope: domain.ScopeRequest{All: true}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.runsInFlight))

	_, err = NewSyncMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}
