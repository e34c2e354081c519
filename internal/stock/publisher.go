package stock

import (
	"context"

	"github.com/nutree/stock-service/internal/stock/dto"
)

// Publisher emits change events after the engine commits. Projection
// caches subscribe and invalidate; nothing ever mutates them directly.
type Publisher interface {
	PublishStockChanged(ctx context.Context, ev *dto.StockEvent) error
}
