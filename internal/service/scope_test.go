package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/testutil"
)

func schoolIDs(systems []domain.SystemConfig) []string {
	ids := make([]string, len(systems))
	for i, s := range systems {
		ids[i] = s.ExternalSchoolID
	}
	return ids
}

func TestResolve_DescendantsAreSuperset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	region := testutil.SeedNode(t, h.db, "region", nil)
	school := testutil.SeedNode(t, h.db, "school", region)
	testutil.SeedSystem(t, h.db, domain.SourceArbor, "A-REGION", region)
	testutil.SeedSystem(t, h.db, domain.SourceArbor, "A-SCHOOL", school)
	testutil.SeedSystem(t, h.db, domain.SourceWonde, "W-SCHOOL", school)

	for _, nodes := range [][]uint{{region.ID}, {school.ID}, {region.ID, school.ID}} {
		flat, err := h.resolver.Resolve(ctx, domain.ScopeRequest{NodeIDs: nodes})
		require.NoError(t, err)
		deep, err := h.resolver.Resolve(ctx, domain.ScopeRequest{NodeIDs: nodes, IncludeDescendants: true})
		require.NoError(t, err)

		for _, src := range domain.Sources {
			assert.Subset(t, schoolIDs(deep[src]), schoolIDs(flat[src]), "nodes %v source %s", nodes, src)
		}
	}

	flat, err := h.resolver.Resolve(ctx, domain.ScopeRequest{NodeIDs: []uint{region.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, flat.Total())

	deep, err := h.resolver.Resolve(ctx, domain.ScopeRequest{NodeIDs: []uint{region.ID}, IncludeDescendants: true})
	require.NoError(t, err)
	assert.Equal(t, 3, deep.Total())
	assert.ElementsMatch(t, []string{"A-REGION", "A-SCHOOL"}, schoolIDs(deep[domain.SourceArbor]))
}

func TestResolve_ExplicitDropsMissingIDs(t *testing.T) {
	h := newHarness(t)
	a := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A1", nil)
	w := testutil.SeedSystem(t, h.db, domain.SourceWonde, "W1", nil)

	scope, err := h.resolver.Resolve(context.Background(), domain.ScopeRequest{
		ConfigIDs: map[domain.Source][]uint{
			domain.SourceArbor: {a.ID, 404},
			domain.SourceWonde: {w.ID, a.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, schoolIDs(scope[domain.SourceArbor]))
	assert.Equal(t, []string{"W1"}, schoolIDs(scope[domain.SourceWonde]))
}

func TestResolve_AllSkipsInactiveAndSchoolless(t *testing.T) {
	h := newHarness(t)
	testutil.SeedSystem(t, h.db, domain.SourceArbor, "A1", nil)
	inactive := testutil.SeedSystem(t, h.db, domain.SourceArbor, "A2", nil)
	require.NoError(t, h.db.Model(inactive).Update("is_active", false).Error)
	testutil.SeedSystem(t, h.db, domain.SourceWonde, "", nil)

	scope, err := h.resolver.Resolve(context.Background(), domain.ScopeRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, schoolIDs(scope.All()))
}

func TestResolve_InvalidScope(t *testing.T) {
	h := newHarness(t)

	_, err := h.resolver.Resolve(context.Background(), domain.ScopeRequest{})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = h.resolver.Resolve(context.Background(), domain.ScopeRequest{
		All:       true,
		ConfigIDs: map[domain.Source][]uint{domain.SourceArbor: {1}},
	})
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestScopeLabel(t *testing.T) {
	assert.Equal(t, "all", domain.ScopeRequest{All: true}.Label())
	assert.Equal(t, "3,9", domain.ScopeRequest{NodeIDs: []uint{3, 9}}.Label())
	assert.Equal(t, "arbor:1,2 wonde:5", domain.ScopeRequest{ConfigIDs: map[domain.Source][]uint{
		domain.SourceWonde: {5},
		domain.SourceArbor: {1, 2},
	}}.Label())
}
