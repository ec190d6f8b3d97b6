package service

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
)

// PipelineTrack syncs systems as a wavefront: cell (i,j) runs endpoint j for
// system i once cells (i-1,j) and (i,j-1) have resolved. The adapter receives
// the school explicitly on every call and is shared by all cells.
type PipelineTrack struct {
	adapter        connector.Adapter
	source         domain.Source
	progress       progress
	metrics        *SyncMetrics
	errorMaxLength int
}

// NewPipelineTrack creates a new PipelineTrack.
func NewPipelineTrack(source domain.Source, adapter connector.Adapter, ledger RunLedger, metrics *SyncMetrics, errorMaxLength int) *PipelineTrack {
	return &PipelineTrack{
		adapter:        adapter,
		source:         source,
		progress:       progress{ledger: ledger},
		metrics:        metrics,
		errorMaxLength: errorMaxLength,
	}
}

// rowState is touched only by the cells of one row, which run strictly in
// column order, so it needs no lock.
type rowState struct {
	started bool
	failed  bool
	skipped bool
	ctx     context.Context
}

// Run executes the grid and returns ctx.Err() if cancellation was observed.
// Every cell closes its signal exactly once, run or skipped, so the grid
// always drains.
func (t *PipelineTrack) Run(ctx context.Context, in TrackInput) error {
	m, n := len(in.Items), len(in.Endpoints)
	if m == 0 {
		return ctx.Err()
	}
	work := context.WithoutCancel(ctx)

	if n == 0 {
		for _, item := range in.Items {
			if ctx.Err() != nil {
				break
			}
			t.progress.running(work, item.AttemptID)
			t.progress.completed(work, in.RunID, item.AttemptID)
			t.metrics.RecordAttempt(t.source, domain.AttemptStatusCompleted)
		}
		return ctx.Err()
	}

	done := make([][]chan struct{}, m)
	rows := make([]rowState, m)
	for i := range done {
		done[i] = make([]chan struct{}, n)
		for j := range done[i] {
			done[i][j] = make(chan struct{})
		}
		rows[i].ctx = logger.WithFields(work, logger.Fields{
			logger.FieldSource:   t.source,
			logger.FieldSchoolID: in.Items[i].System.ExternalSchoolID,
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				defer close(done[i][j])
				if i > 0 {
					<-done[i-1][j]
				}
				if j > 0 {
					<-done[i][j-1]
				}
				t.runCell(ctx, in, &rows[i], in.Items[i], j)
			}(i, j)
		}
	}
	wg.Wait()

	return ctx.Err()
}

func (t *PipelineTrack) runCell(ctx context.Context, in TrackInput, row *rowState, item TrackItem, j int) {
	if row.failed || row.skipped {
		return
	}
	if ctx.Err() != nil {
		row.skipped = true
		return
	}

	work := row.ctx
	if !row.started {
		row.started = true
		t.progress.running(work, item.AttemptID)
	}

	endpoint := in.Endpoints[j]
	t.progress.current(work, item.AttemptID, &endpoint)

	started := time.Now()
	err := t.adapter.RunEndpoint(work, connector.StepRequest{
		RunID:        in.RunID,
		System:       item.System,
		Endpoint:     endpoint,
		AcademicYear: in.AcademicYear,
	})
	t.metrics.RecordStep(t.source, endpoint, time.Since(started), err == nil)

	if err != nil {
		row.failed = true
		msg := truncateError(err, t.errorMaxLength)
		logger.FromContext(work).WithField(logger.FieldEndpoint, endpoint).WithError(err).Warn("Endpoint step failed")
		t.progress.logStep(work, item.AttemptID, endpoint, started, msg)
		t.progress.failed(work, in.RunID, item.AttemptID, msg)
		t.metrics.RecordAttempt(t.source, domain.AttemptStatusFailed)
		return
	}
	t.progress.logStep(work, item.AttemptID, endpoint, started, "")

	if j == len(in.Endpoints)-1 {
		t.progress.completed(work, in.RunID, item.AttemptID)
		t.metrics.RecordAttempt(t.source, domain.AttemptStatusCompleted)
	}
}
