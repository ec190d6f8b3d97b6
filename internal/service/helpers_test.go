package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/repository"
	"github.com/timmy/sissync/internal/testutil"
	"gorm.io/gorm"
)

type stepCall struct {
	school   string
	endpoint string
	start    time.Time
	end      time.Time
}

// fakeAdapter records every step with its timing. Failures are keyed by
// "school/endpoint".
type fakeAdapter struct {
	mu     sync.Mutex
	calls  []stepCall
	fail   map[string]error
	delay  time.Duration
	onStep func(req connector.StepRequest)
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{fail: make(map[string]error)}
}

func (f *fakeAdapter) RunEndpoint(_ context.Context, req connector.StepRequest) error {
	start := time.Now()
	if f.onStep != nil {
		f.onStep(req)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.fail[req.System.ExternalSchoolID+"/"+req.Endpoint]
	f.calls = append(f.calls, stepCall{
		school:   req.System.ExternalSchoolID,
		endpoint: req.Endpoint,
		start:    start,
		end:      time.Now(),
	})
	return err
}

func (f *fakeAdapter) snapshot() []stepCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stepCall(nil), f.calls...)
}

func (f *fakeAdapter) callsFor(school string) []string {
	var endpoints []string
	for _, c := range f.snapshot() {
		if c.school == school {
			endpoints = append(endpoints, c.endpoint)
		}
	}
	return endpoints
}

type harness struct {
	db       *gorm.DB
	runs     *repository.SyncRunRepository
	resolver *ScopeResolver
	arbor    *fakeAdapter
	wonde    *fakeAdapter
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	h := &harness{
		db:       db,
		runs:     repository.NewSyncRunRepository(db),
		resolver: NewScopeResolver(repository.NewNodeRepository(db), repository.NewSystemConfigRepository(db)),
		arbor:    newFakeAdapter(),
		wonde:    newFakeAdapter(),
	}
	h.orch = h.orchestrator(h.runs)
	return h
}

func (h *harness) orchestrator(ledger RunLedger) *Orchestrator {
	arborFactory := connector.FactoryFunc{
		Src: domain.SourceArbor,
		New: func(domain.SystemConfig) (connector.Adapter, error) { return h.arbor, nil },
	}
	tracks := map[domain.Source]Track{
		domain.SourceArbor: NewSerialTrack(arborFactory, ledger, nil, 1000),
		domain.SourceWonde: NewPipelineTrack(domain.SourceWonde, h.wonde, ledger, nil, 1000),
	}
	return NewOrchestrator(h.resolver, ledger, tracks, nil, nil, OrchestratorConfig{SummaryLimit: 5})
}

func (h *harness) schools(t *testing.T, runID string) []domain.SyncRunSchool {
	t.Helper()
	run, err := h.runs.GetRun(context.Background(), runID, true)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	return run.Schools
}

func schoolByID(schools []domain.SyncRunSchool, id string) domain.SyncRunSchool {
	for _, s := range schools {
		if s.ExternalSchoolID == id {
			return s
		}
	}
	return domain.SyncRunSchool{}
}

func wondeOnly(ids ...uint) domain.ScopeRequest {
	return domain.ScopeRequest{ConfigIDs: map[domain.Source][]uint{domain.SourceWonde: ids}}
}

func arborOnly(ids ...uint) domain.ScopeRequest {
	return domain.ScopeRequest{ConfigIDs: map[domain.Source][]uint{domain.SourceArbor: ids}}
}
