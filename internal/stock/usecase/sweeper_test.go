package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/logger"
)

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)
	rec := seedRecord(t, uc, "P1", "B1", "200.000")

	base := time.Now()
	expired := base.Add(60 * time.Second)
	future := base.Add(time.Hour)

	staleRes, err := uc.Reserve(ctx, &dto.ReserveInput{
		RecordID:  rec.ID,
		Quantity:  model.MustQuantity("50.000"),
		OrderID:   "O-stale",
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	liveRes, err := uc.Reserve(ctx, &dto.ReserveInput{
		RecordID:  rec.ID,
		Quantity:  model.MustQuantity("20.000"),
		OrderID:   "O-live",
		ExpiresAt: &future,
	})
	require.NoError(t, err)

	// The sweep runs one second past the stale deadline.
	uc.now = func() time.Time { return base.Add(61 * time.Second) }

	movesBefore, _, err := repo.ListMovements(ctx, &dto.MovementFilters{StockRecordID: rec.ID})
	require.NoError(t, err)

	n, err := uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err := repo.GetReservation(ctx, staleRes.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationExpired, stale.Status)

	live, err := repo.GetReservation(ctx, liveRes.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationHeld, live.Status)

	got, err := repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MustQuantity("200.000"), got.OnHand)
	assert.Equal(t, model.MustQuantity("20.000"), got.Reserved)
	assert.Equal(t, model.MustQuantity("180.000"), got.Available)

	movesAfter, _, err := repo.ListMovements(ctx, &dto.MovementFilters{StockRecordID: rec.ID})
	require.NoError(t, err)
	assert.Len(t, movesAfter, len(movesBefore), "expiry writes no movement")

	checkInvariants(t, repo, rec.ID)

	t.Run("idempotent on rerun", func(t *testing.T) {
		n, err := uc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSweepSkipsCommittedRace(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)
	rec := seedRecord(t, uc, "P1", "B1", "100.000")

	past := time.Now().Add(-time.Minute)
	res, err := uc.Reserve(ctx, &dto.ReserveInput{
		RecordID:  rec.ID,
		Quantity:  model.MustQuantity("10.000"),
		OrderID:   "O1",
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	// Committed before the sweeper got to it.
	_, err = uc.Commit(ctx, res.ID, "system")
	require.NoError(t, err)

	n, err := uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := repo.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCommitted, stored.Status)
	checkInvariants(t, repo, rec.ID)
}

func TestNewSweeperClampsInterval(t *testing.T) {
	log := logger.NewNop()
	assert.Equal(t, maxSweepInterval, NewSweeper(nil, 0, log).interval)
	assert.Equal(t, maxSweepInterval, NewSweeper(nil, 5*time.Minute, log).interval)
	assert.Equal(t, 30*time.Second, NewSweeper(nil, 30*time.Second, log).interval)
}
