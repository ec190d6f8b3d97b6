package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/repository"
	"github.com/timmy/sissync/internal/testutil"
)

type countingReloader struct {
	calls int
}

func (c *countingReloader) Reload(context.Context) error {
	c.calls++
	return nil
}

func TestScheduleService_CRUD(t *testing.T) {
	db := testutil.NewTestDB(t)
	reloader := &countingReloader{}
	svc := NewScheduleService(repository.NewScheduleRepository(db), reloader)
	ctx := context.Background()

	off := false
	created, err := svc.Create(ctx, ScheduleInput{
		Name:           "nightly",
		NodeIDs:        []uint{1, 2},
		CronExpression: " 0 2 * * * ",
		WondeEndpoints: []string{"students"},
		IsActive:       &off,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", created.CronExpression)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, 1, reloader.calls)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []uint{1, 2}, []uint(got.NodeIDs))

	on := true
	updated, err := svc.Update(ctx, created.ID, ScheduleInput{
		Name:           "nightly",
		CronExpression: "0 3 * * *",
		IsActive:       &on,
	}, "bob")
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Empty(t, updated.NodeIDs)
	assert.Equal(t, 2, reloader.calls)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.Equal(t, 3, reloader.calls)
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrScheduleNotFound)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestScheduleService_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScheduleService(repository.NewScheduleRepository(db), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, ScheduleInput{CronExpression: "every night"}, "alice")
	assert.ErrorIs(t, err, ErrInvalidCron)

	_, err = svc.Create(ctx, ScheduleInput{CronExpression: "0 2 * * *", ArborEndpoints: []string{"employees"}}, "alice")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	_, err = svc.Update(ctx, 404, ScheduleInput{CronExpression: "0 2 * * *"}, "alice")
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	created, err := svc.Create(ctx, ScheduleInput{CronExpression: "@daily"}, "alice")
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, domain.ScopeModeAll, ScheduleScope(*created).Mode())
}
