package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
)

func TestGetAvailability(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)
	rec := seedRecord(t, uc, "P1", "B1", "120.000")

	_, err := uc.Reserve(ctx, &dto.ReserveInput{
		RecordID: rec.ID,
		Quantity: model.MustQuantity("45.500"),
		OrderID:  "O1",
	})
	require.NoError(t, err)

	av, err := uc.GetAvailability(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MustQuantity("120.000"), av.OnHand)
	assert.Equal(t, model.MustQuantity("45.500"), av.Reserved)
	assert.Equal(t, model.MustQuantity("74.500"), av.Available)
	assert.NotNil(t, av.LastMovementAt)

	_, err = uc.GetAvailability(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestValuation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)

	seedRecord(t, uc, "apricots", "B1", "12.500")
	seedRecord(t, uc, "figs", "B1", "3.250")
	seedRecord(t, uc, "figs", "B2", "10.000")

	mustMoney := func(s string) model.Money {
		m, err := model.ParseMoney(s)
		require.NoError(t, err)
		return m
	}
	repo.mu.Lock()
	repo.prices["apricots"] = mustMoney("8.40")
	repo.prices["figs"] = mustMoney("11.00")
	repo.mu.Unlock()

	t.Run("single branch", func(t *testing.T) {
		branch := "B1"
		val, err := uc.Valuation(ctx, &branch)
		require.NoError(t, err)
		// 12.500*8.40 = 105.00; 3.250*11.00 = 35.75
		assert.Equal(t, mustMoney("140.75"), val.TotalValue)
		assert.Equal(t, 2, val.ItemCount)
		assert.Equal(t, model.MustQuantity("15.750"), val.TotalQuantity)
	})

	t.Run("all branches", func(t *testing.T) {
		val, err := uc.Valuation(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, mustMoney("250.75"), val.TotalValue)
		assert.Equal(t, 3, val.ItemCount)
	})
}

func TestSearchMovementsFallsBackToDB(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo) // es is nil
	rec := seedRecord(t, uc, "P1", "B1", "100.000")

	_, err := uc.Issue(ctx, &dto.IssueInput{
		RecordID:    rec.ID,
		Quantity:    model.MustQuantity("10.000"),
		Reason:      model.ReasonSale,
		ReferenceID: "S-42",
	})
	require.NoError(t, err)

	items, total, err := uc.SearchMovements(ctx, "S-42", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, model.MovementOut, items[0].Kind)
}

func TestListMovementsOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)
	rec := seedRecord(t, uc, "P1", "B1", "0.000")

	for i := 0; i < 5; i++ {
		_, err := uc.Receive(ctx, &dto.ReceiveInput{
			RecordID: rec.ID,
			Quantity: model.MustQuantity("1.000"),
			Reason:   model.ReasonPurchase,
		})
		require.NoError(t, err)
	}

	items, total, err := uc.ListMovements(ctx, &dto.MovementFilters{
		StockRecordID: rec.ID,
		Page:          1,
		PageSize:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 3)
	assert.Greater(t, items[0].ID, items[1].ID, "newest first")

	rest, _, err := uc.ListMovements(ctx, &dto.MovementFilters{
		StockRecordID: rec.ID,
		Page:          2,
		PageSize:      3,
	})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestListMovementsTimeRange(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)
	rec := seedRecord(t, uc, "P1", "B1", "0.000")

	base := time.Now()
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		uc.now = func() time.Time { return at }
		_, err := uc.Receive(ctx, &dto.ReceiveInput{
			RecordID: rec.ID,
			Quantity: model.MustQuantity("1.000"),
			Reason:   model.ReasonPurchase,
		})
		require.NoError(t, err)
	}

	t.Run("window selects only movements inside it", func(t *testing.T) {
		from := base.Add(30 * time.Minute)
		to := base.Add(90 * time.Minute)
		items, total, err := uc.ListMovements(ctx, &dto.MovementFilters{
			StockRecordID: rec.ID,
			StartDate:     &from,
			EndDate:       &to,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, base.Add(time.Hour), items[0].CreatedAt)
	})

	t.Run("future-only window is empty", func(t *testing.T) {
		future := base.Add(24 * time.Hour)
		items, total, err := uc.ListMovements(ctx, &dto.MovementFilters{
			StockRecordID: rec.ID,
			StartDate:     &future,
		})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		at := base.Add(time.Hour)
		items, _, err := uc.ListMovements(ctx, &dto.MovementFilters{
			StockRecordID: rec.ID,
			StartDate:     &at,
			EndDate:       &at,
		})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

func TestFindRecordsPaging(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)

	for _, branch := range []string{"B1", "B2", "B3", "B4", "B5"} {
		seedRecord(t, uc, "P1", branch, "1.000")
	}

	page1, total, err := uc.FindRecords(ctx, &dto.RecordFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "B1", page1[0].BranchID)

	page3, total, err := uc.FindRecords(ctx, &dto.RecordFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page3, 1)
	assert.Equal(t, "B5", page3[0].BranchID)
}

func TestListExpiring(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	uc, _ := newTestEngine(repo)

	base := time.Now()
	uc.now = func() time.Time { return base }

	soon := base.Add(2 * 24 * time.Hour)
	later := base.Add(30 * 24 * time.Hour)

	_, err := uc.CreateRecord(ctx, &dto.CreateRecordInput{
		ProductID:       "apricots",
		BranchID:        "B1",
		OnHand:          model.MustQuantity("5.000"),
		ReorderQuantity: model.MustQuantity("1.000"),
		ExpiryDate:      &soon,
	})
	require.NoError(t, err)

	_, err = uc.CreateRecord(ctx, &dto.CreateRecordInput{
		ProductID:       "figs",
		BranchID:        "B1",
		OnHand:          model.MustQuantity("5.000"),
		ReorderQuantity: model.MustQuantity("1.000"),
		ExpiryDate:      &later,
	})
	require.NoError(t, err)

	entries, err := uc.ListExpiring(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "apricots", entries[0].Record.ProductID)
	assert.Equal(t, 2, entries[0].DaysUntilExpiry)
	assert.Equal(t, model.MustQuantity("5.000"), entries[0].Quantity)

	t.Run("wider window includes both, soonest first", func(t *testing.T) {
		entries, err := uc.ListExpiring(ctx, 60)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "apricots", entries[0].Record.ProductID)
		assert.Equal(t, "figs", entries[1].Record.ProductID)
	})
}
