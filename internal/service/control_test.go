package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/repository"
	"github.com/timmy/sissync/internal/testutil"
)

func newSyncService(h *harness) (*SyncService, *CancelRegistry) {
	registry := NewCancelRegistry()
	return NewSyncService(h.orch, h.runs, registry), registry
}

func TestTriggerRun_RunsInBackground(t *testing.T) {
	h := newHarness(t)
	sys := testutil.SeedSystem(t, h.db, domain.SourceWonde, "W1", nil)
	svc, registry := newSyncService(h)

	res, err := svc.TriggerRun(context.Background(), RunRequest{Scope: wondeOnly(sys.ID), TriggeredBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "started", res.Status)
	require.NotEmpty(t, res.RunID)

	svc.Wait()
	assert.Zero(t, registry.Len())

	run, err := svc.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "alice", run.TriggeredBy)
	require.Len(t, run.Schools, 1)
}

func TestTriggerRun_InvalidScopeIsSynchronous(t *testing.T) {
	h := newHarness(t)
	svc, _ := newSyncService(h)

	_, err := svc.TriggerRun(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrInvalidScope)

	runs, total, err := svc.ListRuns(context.Background(), repository.RunFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, runs)
}

func TestCancelRun_LiveHandleMidRun(t *testing.T) {
	h := newHarness(t)
	a1 := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A1", nil)
	a2 := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A2", nil)
	svc, _ := newSyncService(h)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.arbor.onStep = func(req connector.StepRequest) {
		if req.System.ExternalSchoolID == "A1" {
			close(entered)
			<-release
		}
	}

	res, err := svc.TriggerRun(context.Background(), RunRequest{
		Scope:     arborOnly(a1.ID, a2.ID),
		Endpoints: map[domain.Source][]string{domain.SourceArbor: {"staff"}},
	})
	require.NoError(t, err)

	<-entered
	require.NoError(t, svc.CancelRun(context.Background(), res.RunID))
	close(release)
	svc.Wait()

	run, err := svc.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, domain.AttemptStatusCompleted, schoolByID(run.Schools, "A1").Status)
	assert.Equal(t, domain.AttemptStatusSkipped, schoolByID(run.Schools, "A2").Status)
	assert.Empty(t, h.arbor.callsFor("A2"))
}

func TestCancelRun_WithoutHandleForceCancels(t *testing.T) {
	h := newHarness(t)
	svc, _ := newSyncService(h)

	// A prepared run with no live handle, as after a process restart.
	run, err := h.orch.Prepare(context.Background(), RunRequest{Scope: domain.ScopeRequest{All: true}})
	require.NoError(t, err)

	require.NoError(t, svc.CancelRun(context.Background(), run.ID))

	got, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, got.Status)

	assert.ErrorIs(t, svc.CancelRun(context.Background(), run.ID), ErrRunNotActive)
}

func TestCancelRun_UnknownRun(t *testing.T) {
	h := newHarness(t)
	svc, _ := newSyncService(h)

	assert.ErrorIs(t, svc.CancelRun(context.Background(), "missing"), ErrRunNotFound)

	_, err := svc.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, _, err = svc.ListRunSchools(context.Background(), "missing", 10, 0)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCancelRegistry(t *testing.T) {
	r := NewCancelRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Register("run-1", cancel)

	assert.False(t, r.Cancel("run-2"))
	assert.True(t, r.Cancel("run-1"))
	assert.Error(t, ctx.Err())

	r.Remove("run-1")
	assert.False(t, r.Cancel("run-1"))
	assert.Zero(t, r.Len())
}

func TestNormalizePage(t *testing.T) {
	limit, offset := NormalizePage(0, -3)
	assert.Equal(t, defaultPageSize, limit)
	assert.Zero(t, offset)

	limit, _ = NormalizePage(10_000, 0)
	assert.Equal(t, maxPageSize, limit)
}

func TestShutdown_CancelsBackgroundRuns(t *testing.T) {
	h := newHarness(t)
	a1 := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A1", nil)
	a2 := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A2", nil)
	svc, registry := newSyncService(h)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.arbor.onStep = func(req connector.StepRequest) {
		if req.System.ExternalSchoolID == "A1" {
			close(entered)
			<-release
		}
	}

	res, err := svc.TriggerRun(context.Background(), RunRequest{
		Scope:     arborOnly(a1.ID, a2.ID),
		Endpoints: map[domain.Source][]string{domain.SourceArbor: {"staff"}},
	})
	require.NoError(t, err)
	<-entered

	// The blocked step outlives the deadline, but the run is already signalled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(shutdownCtx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Zero(t, registry.Len())

	run, err := svc.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Empty(t, h.arbor.callsFor("A2"))
}

func TestCancelRegistry_CancelAll(t *testing.T) {
	r := NewCancelRegistry()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	r.Register("run-1", cancel1)
	r.Register("run-2", cancel2)

	assert.Equal(t, 2, r.CancelAll())
	assert.Error(t, ctx1.Err())
	assert.Error(t, ctx2.Err())
}
