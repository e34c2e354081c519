package usecase

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
)

func (uc *stockUseCase) GetAvailability(ctx context.Context, recordID string) (*dto.Availability, error) {
	rec, err := uc.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return &dto.Availability{
		StockRecordID:  rec.ID,
		OnHand:         rec.OnHand,
		Reserved:       rec.Reserved,
		Available:      rec.OnHand - rec.Reserved,
		LastMovementAt: rec.LastMovementAt,
	}, nil
}

func (uc *stockUseCase) Valuation(ctx context.Context, branchID *string) (*dto.Valuation, error) {
	rows, err := uc.repo.ValuationRows(ctx, branchID)
	if err != nil {
		return nil, err
	}

	out := &dto.Valuation{BranchID: branchID}
	for _, row := range rows {
		// Rounding to money happens per line, at the valuation boundary.
		value, err := row.OnHand.Mul(row.UnitPrice)
		if err != nil {
			return nil, err
		}
		if out.TotalValue, err = out.TotalValue.Add(value); err != nil {
			return nil, err
		}
		if out.TotalQuantity, err = out.TotalQuantity.Add(row.OnHand); err != nil {
			return nil, err
		}
		out.ItemCount++
	}
	return out, nil
}

func (uc *stockUseCase) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return uc.repo.ListMovements(ctx, f)
}

// SearchMovements serves free-text lookups (notes, references, actors)
// from elasticsearch, falling back to a reference lookup in the database
// when the index is unavailable.
func (uc *stockUseCase) SearchMovements(ctx context.Context, query string, page, pageSize int) ([]model.StockMovement, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	if uc.es != nil {
		q := map[string]interface{}{
			"query": map[string]interface{}{
				"query_string": map[string]interface{}{
					"query":  query,
					"fields": []string{"note^2", "reference_id", "transfer_ref", "actor_id"},
				},
			},
			"sort": []map[string]interface{}{
				{"id": map[string]interface{}{"order": "desc"}},
			},
			"from": (page - 1) * pageSize,
			"size": pageSize,
		}
		res, err := uc.es.Search(ctx, movementIndex, q)
		if err == nil {
			var items []model.StockMovement
			for _, hit := range res.Hits.Hits {
				var m model.StockMovement
				if err := json.Unmarshal(hit.Source, &m); err == nil {
					items = append(items, m)
				}
			}
			return items, res.Hits.Total.Value, nil
		}
		uc.logger.Error("movement search failed, falling back to DB", zap.Error(err))
	}

	return uc.repo.ListMovements(ctx, &dto.MovementFilters{
		ReferenceID: query,
		Page:        page,
		PageSize:    pageSize,
	})
}

func (uc *stockUseCase) ListExpiring(ctx context.Context, withinDays int) ([]dto.ExpiringEntry, error) {
	if withinDays < 0 {
		withinDays = 0
	}
	now := uc.now()
	before := now.Add(time.Duration(withinDays) * 24 * time.Hour)

	records, err := uc.repo.ListExpiring(ctx, before)
	if err != nil {
		return nil, err
	}

	entries := make([]dto.ExpiringEntry, 0, len(records))
	for _, rec := range records {
		days := int(rec.ExpiryDate.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		entries = append(entries, dto.ExpiringEntry{
			Record:          rec,
			DaysUntilExpiry: days,
			Quantity:        rec.OnHand,
		})
	}
	return entries, nil
}
