package usecase

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
)

const movementIndex = "stock-movements"

const movementMapping = `{
	"mappings": {
		"properties": {
			"stock_record_id": { "type": "keyword" },
			"product_id": { "type": "keyword" },
			"branch_id": { "type": "keyword" },
			"kind": { "type": "keyword" },
			"reason": { "type": "keyword" },
			"reference_id": { "type": "keyword" },
			"transfer_ref": { "type": "keyword" },
			"note": { "type": "text" },
			"actor_id": { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

// publishChange runs after a commit. Both sides are best-effort: a lost
// event or index write degrades projections, never the ledger.
func (uc *stockUseCase) publishChange(ctx context.Context, rec *model.StockRecord, m *model.StockMovement) {
	if uc.publisher != nil {
		ev := &dto.StockEvent{
			StockRecordID: rec.ID,
			ProductID:     rec.ProductID,
			BranchID:      rec.BranchID,
			OccurredAt:    uc.now(),
		}
		if m != nil {
			ev.MovementID = &m.ID
		}
		if err := uc.publisher.PublishStockChanged(ctx, ev); err != nil {
			uc.logger.Error("failed to publish stock change event",
				zap.String("stock_record_id", rec.ID), zap.Error(err))
		}
	}
	if m != nil {
		uc.indexMovement(ctx, m)
	}
}

func (uc *stockUseCase) indexMovement(ctx context.Context, m *model.StockMovement) {
	if uc.es == nil {
		return
	}
	_ = uc.es.CreateIndex(ctx, movementIndex, movementMapping)
	if err := uc.es.Index(ctx, movementIndex, strconv.FormatInt(m.ID, 10), m); err != nil {
		uc.logger.Error("failed to index movement", zap.Int64("movement_id", m.ID), zap.Error(err))
	}
}
