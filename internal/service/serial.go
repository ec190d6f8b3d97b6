package service

import (
	"context"
	"time"

	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
)

// SerialTrack syncs systems strictly one at a time, each through a fresh
// adapter from its factory, endpoints in order.
type SerialTrack struct {
	factory        connector.Factory
	progress       progress
	metrics        *SyncMetrics
	errorMaxLength int
}

// NewSerialTrack creates a new SerialTrack.
func NewSerialTrack(factory connector.Factory, ledger RunLedger, metrics *SyncMetrics, errorMaxLength int) *SerialTrack {
	return &SerialTrack{
		factory:        factory,
		progress:       progress{ledger: ledger},
		metrics:        metrics,
		errorMaxLength: errorMaxLength,
	}
}

// Run executes in. It returns ctx.Err() as soon as cancellation is observed
// between steps, leaving the remaining attempts untouched for the caller.
func (t *SerialTrack) Run(ctx context.Context, in TrackInput) error {
	// Ledger writes and in-flight connector calls outlive cancellation;
	// ctx is only consulted between steps.
	work := context.WithoutCancel(ctx)
	source := t.factory.Source()

	for _, item := range in.Items {
		if err := ctx.Err(); err != nil {
			return err
		}

		itemCtx := logger.WithFields(work, logger.Fields{
			logger.FieldSource:   source,
			logger.FieldSchoolID: item.System.ExternalSchoolID,
		})

		if err := t.runSystem(ctx, itemCtx, in, item); err != nil {
			return err
		}
	}
	return nil
}

// runSystem returns an error only on cancellation; step failures end the
// system, not the track.
func (t *SerialTrack) runSystem(ctx, work context.Context, in TrackInput, item TrackItem) error {
	source := t.factory.Source()
	t.progress.running(work, item.AttemptID)

	adapter, err := t.factory.NewAdapter(item.System)
	if err != nil {
		logger.FromContext(work).WithError(err).Warn("Failed to build adapter")
		t.progress.failed(work, in.RunID, item.AttemptID, truncateError(err, t.errorMaxLength))
		t.metrics.RecordAttempt(source, domain.AttemptStatusFailed)
		return nil
	}

	for _, endpoint := range in.Endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}

		ep := endpoint
		t.progress.current(work, item.AttemptID, &ep)

		started := time.Now()
		stepErr := adapter.RunEndpoint(work, connector.StepRequest{
			RunID:        in.RunID,
			System:       item.System,
			Endpoint:     endpoint,
			AcademicYear: in.AcademicYear,
		})
		t.metrics.RecordStep(source, endpoint, time.Since(started), stepErr == nil)

		if stepErr != nil {
			msg := truncateError(stepErr, t.errorMaxLength)
			logger.FromContext(work).WithField(logger.FieldEndpoint, endpoint).WithError(stepErr).Warn("Endpoint step failed")
			t.progress.logStep(work, item.AttemptID, endpoint, started, msg)
			t.progress.failed(work, in.RunID, item.AttemptID, msg)
			t.metrics.RecordAttempt(source, domain.AttemptStatusFailed)
			return nil
		}
		t.progress.logStep(work, item.AttemptID, endpoint, started, "")
	}

	t.progress.completed(work, in.RunID, item.AttemptID)
	t.metrics.RecordAttempt(source, domain.AttemptStatusCompleted)
	return nil
}
