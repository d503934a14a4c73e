package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crosspay.facilitator/internal/domain/entities"
	domainerrors "crosspay.facilitator/internal/domain/errors"
)

func TestUnitOfWork_CommitsJobAndEventTogether(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db)
	jobs := NewBridgeJobRepository(db)
	events := NewBridgeEventRepository(db)
	ctx := context.Background()

	job := newJob("eip155:84532", "0xabc", "eip155:11155111")
	require.NoError(t, uow.Do(ctx, func(txCtx context.Context) error {
		if err := jobs.Create(txCtx, job); err != nil {
			return err
		}
		return events.Create(txCtx, &entities.BridgeEvent{
			EventType:      entities.BridgeEventStart,
			JobID:          job.ID,
			IdempotencyKey: job.IdempotencyKey,
		})
	}))

	stored, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, entities.BridgeJobStatusPending, stored.Status)

	recorded, err := events.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db)
	jobs := NewBridgeJobRepository(db)
	ctx := context.Background()

	job := newJob("eip155:84532", "0xabc", "eip155:11155111")
	boom := errors.New("event write rejected")
	err := uow.Do(ctx, func(txCtx context.Context) error {
		if cerr := jobs.Create(txCtx, job); cerr != nil {
			return cerr
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The job create happened inside the failed transaction only.
	_, err = jobs.GetByID(ctx, job.ID)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
	_, err = jobs.GetByIdempotencyKey(ctx, job.IdempotencyKey)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestUnitOfWork_RepositoriesOutsideDoUseBaseHandle(t *testing.T) {
	db := newTestDB(t)
	jobs := NewBridgeJobRepository(db)
	ctx := context.Background()

	job := newJob("eip155:84532", "0xabc", "eip155:11155111")
	require.NoError(t, jobs.Create(ctx, job))
	require.NotEqual(t, uuid.Nil, job.ID)

	stored, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.IdempotencyKey, stored.IdempotencyKey)
}
