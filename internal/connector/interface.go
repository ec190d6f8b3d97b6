// Package connector defines the boundary between the sync engine and the
// external student-information APIs.
package connector

import (
	"context"

	"github.com/timmy/sissync/internal/domain"
)

// StepRequest identifies one endpoint step for one external system.
type StepRequest struct {
	RunID        string
	System       domain.SystemConfig
	Endpoint     string
	AcademicYear string
}

// Adapter runs endpoint steps against an external API.
type Adapter interface {
	// RunEndpoint pulls every page of one endpoint for req.System and persists it.
	// Parameters:
	//   - ctx: context for deadlines; cancellation is checked by the caller between steps.
	//   - req: the system and endpoint to sync.
	// Returns:
	//   - error: non-nil if the step failed; the caller decides the system's fate.
	RunEndpoint(ctx context.Context, req StepRequest) error
}

// Factory builds isolated adapters, one per system, for sources whose client
// holds per-school state.
type Factory interface {
	// Source returns the data source this factory serves.
	Source() domain.Source

	// NewAdapter returns a fresh adapter bound to sys.
	// Parameters:
	//   - sys: the system the adapter will serve for its whole lifetime.
	// Returns:
	//   - Adapter: an adapter isolated from every other system.
	//   - error: non-nil if sys carries unusable credentials.
	NewAdapter(sys domain.SystemConfig) (Adapter, error)
}

// RecordWriter persists pulled rows.
type RecordWriter interface {
	UpsertRecords(ctx context.Context, records []domain.SyncedRecord) error
}

// AdapterFunc adapts a plain function to Adapter.
type AdapterFunc func(ctx context.Context, req StepRequest) error

// RunEndpoint calls f.
func (f AdapterFunc) RunEndpoint(ctx context.Context, req StepRequest) error {
	return f(ctx, req)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc struct {
	Src domain.Source
	New func(sys domain.SystemConfig) (Adapter, error)
}

// Source returns f.Src.
func (f FactoryFunc) Source() domain.Source { return f.Src }

// NewAdapter calls f.New.
func (f FactoryFunc) NewAdapter(sys domain.SystemConfig) (Adapter, error) { return f.New(sys) }
