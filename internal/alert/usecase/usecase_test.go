package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutree/stock-service/internal/alert"
	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/pkg/logger"
)

type fakeAlertRepo struct {
	byKind map[string][]alert.Alert
	calls  map[string]int
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{
		byKind: make(map[string][]alert.Alert),
		calls:  make(map[string]int),
	}
}

func (r *fakeAlertRepo) serve(kind, branchID string) []alert.Alert {
	r.calls[kind]++
	var out []alert.Alert
	for _, a := range r.byKind[kind] {
		if branchID != "" && a.BranchID != branchID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (r *fakeAlertRepo) LowStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	return r.serve(alert.KindLowStock, f.BranchID), nil
}

func (r *fakeAlertRepo) OutOfStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	return r.serve(alert.KindOutOfStock, f.BranchID), nil
}

func (r *fakeAlertRepo) ExpiringSoon(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	return r.serve(alert.KindExpiringSoon, f.BranchID), nil
}

func (r *fakeAlertRepo) CriticalStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	return r.serve(alert.KindCriticalStock, f.BranchID), nil
}

func sampleAlert(kind, branch string) alert.Alert {
	return alert.Alert{
		Kind:          kind,
		StockRecordID: "rec-" + branch,
		ProductID:     "apricots",
		BranchID:      branch,
		OnHand:        model.MustQuantity("5.000"),
		Available:     model.MustQuantity("5.000"),
	}
}

func TestListAlertsSingleKind(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	repo.byKind[alert.KindLowStock] = []alert.Alert{
		sampleAlert(alert.KindLowStock, "B1"),
		sampleAlert(alert.KindLowStock, "B2"),
	}

	uc := NewAlertUseCase(repo, nil, time.Minute, logger.NewNop())

	items, err := uc.ListAlerts(ctx, alert.KindLowStock, &alert.Filters{BranchID: "B1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B1", items[0].BranchID)
}

func TestListAlertsAllKindsCriticalFirst(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	repo.byKind[alert.KindLowStock] = []alert.Alert{sampleAlert(alert.KindLowStock, "B1")}
	repo.byKind[alert.KindCriticalStock] = []alert.Alert{sampleAlert(alert.KindCriticalStock, "B1")}
	repo.byKind[alert.KindOutOfStock] = []alert.Alert{sampleAlert(alert.KindOutOfStock, "B1")}

	uc := NewAlertUseCase(repo, nil, time.Minute, logger.NewNop())

	items, err := uc.ListAlerts(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, alert.KindCriticalStock, items[0].Kind)
	assert.Equal(t, alert.KindOutOfStock, items[1].Kind)
	assert.Equal(t, alert.KindLowStock, items[2].Kind)
}

func TestListAlertsRejectsUnknownKind(t *testing.T) {
	uc := NewAlertUseCase(newFakeAlertRepo(), nil, time.Minute, logger.NewNop())

	_, err := uc.ListAlerts(context.Background(), "SOMETHING_ELSE", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidOperation))
}

func TestListAlertsWithoutCacheRecomputes(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	repo.byKind[alert.KindOutOfStock] = []alert.Alert{sampleAlert(alert.KindOutOfStock, "B1")}

	uc := NewAlertUseCase(repo, nil, time.Minute, logger.NewNop())

	_, err := uc.ListAlerts(ctx, alert.KindOutOfStock, nil)
	require.NoError(t, err)
	_, err = uc.ListAlerts(ctx, alert.KindOutOfStock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls[alert.KindOutOfStock], "nil cache means every read recomputes")
}

func TestInvalidateWithoutCacheIsNoop(t *testing.T) {
	uc := NewAlertUseCase(newFakeAlertRepo(), nil, time.Minute, logger.NewNop())
	assert.NoError(t, uc.Invalidate(context.Background(), "B1"))
}

func TestCacheKeyShape(t *testing.T) {
	assert.Equal(t, "alerts:LOW_STOCK:branch:B1:d0", cacheKey(alert.KindLowStock, &alert.Filters{BranchID: "B1"}))
	assert.Equal(t, "alerts:ALL:branch:all:d7", cacheKey("", &alert.Filters{WithinDays: 7}))
}
