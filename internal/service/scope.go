package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/repository"
)

// ErrInvalidScope is returned when a scope request does not select exactly one mode.
var ErrInvalidScope = errors.New("invalid scope: exactly one of config ids, all or node ids must be set")

// ResolvedScope holds the systems in scope, per source, in materialization order.
type ResolvedScope map[domain.Source][]domain.SystemConfig

// Total returns the number of systems across sources.
func (r ResolvedScope) Total() int {
	total := 0
	for _, systems := range r {
		total += len(systems)
	}
	return total
}

// All returns every system, sources in domain.Sources order.
func (r ResolvedScope) All() []domain.SystemConfig {
	all := make([]domain.SystemConfig, 0, r.Total())
	for _, src := range domain.Sources {
		all = append(all, r[src]...)
	}
	return all
}

// ScopeResolver turns a scope request into concrete system configs.
type ScopeResolver struct {
	nodes   *repository.NodeRepository
	configs *repository.SystemConfigRepository
}

// NewScopeResolver creates a new ScopeResolver.
func NewScopeResolver(nodes *repository.NodeRepository, configs *repository.SystemConfigRepository) *ScopeResolver {
	return &ScopeResolver{nodes: nodes, configs: configs}
}

// Validate checks that req selects exactly one mode.
func (r *ScopeResolver) Validate(req domain.ScopeRequest) error {
	if req.Mode() == domain.ScopeModeNone {
		return ErrInvalidScope
	}
	return nil
}

// Resolve returns the systems req selects. Configs without an external
// school id are never returned.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: scope request with exactly one mode set.
//
// Returns:
//   - ResolvedScope: systems per source.
//   - error: ErrInvalidScope for a malformed request, or a storage error.
func (r *ScopeResolver) Resolve(ctx context.Context, req domain.ScopeRequest) (ResolvedScope, error) {
	switch req.Mode() {
	case domain.ScopeModeExplicit:
		return r.resolveExplicit(ctx, req.ConfigIDs)
	case domain.ScopeModeAll:
		return r.resolveAll(ctx)
	case domain.ScopeModeNodes:
		return r.resolveNodes(ctx, req.NodeIDs, req.IncludeDescendants)
	default:
		return nil, ErrInvalidScope
	}
}

// resolveExplicit drops unknown ids silently.
func (r *ScopeResolver) resolveExplicit(ctx context.Context, ids map[domain.Source][]uint) (ResolvedScope, error) {
	out := make(ResolvedScope, len(domain.Sources))
	for _, src := range domain.Sources {
		configs, err := r.configs.GetByIDs(ctx, src, ids[src])
		if err != nil {
			return nil, err
		}
		out[src] = configs
	}
	return out, nil
}

func (r *ScopeResolver) resolveAll(ctx context.Context) (ResolvedScope, error) {
	out := make(ResolvedScope, len(domain.Sources))
	for _, src := range domain.Sources {
		configs, err := r.configs.ListActive(ctx, src)
		if err != nil {
			return nil, err
		}
		out[src] = configs
	}
	return out, nil
}

func (r *ScopeResolver) resolveNodes(ctx context.Context, nodeIDs []uint, includeDescendants bool) (ResolvedScope, error) {
	expanded := nodeIDs
	if includeDescendants {
		ids, cycle, err := r.nodes.ExpandDescendants(ctx, nodeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to expand nodes: %w", err)
		}
		if cycle {
			logger.CtxWarn(ctx, "Node tree contains a cycle under %v; cycle was cut", nodeIDs)
		}
		expanded = ids
	}

	out := make(ResolvedScope, len(domain.Sources))
	for _, src := range domain.Sources {
		schoolIDs, err := r.nodes.SchoolIDsForNodes(ctx, src, expanded)
		if err != nil {
			return nil, err
		}
		configs, err := r.configs.ListActiveBySchoolIDs(ctx, src, schoolIDs)
		if err != nil {
			return nil, err
		}
		out[src] = configs
	}
	return out, nil
}
