package alert

import (
	"time"

	"github.com/nutree/stock-service/internal/model"
)

const (
	KindLowStock      = "LOW_STOCK"
	KindOutOfStock    = "OUT_OF_STOCK"
	KindExpiringSoon  = "EXPIRING_SOON"
	KindCriticalStock = "CRITICAL_STOCK"
)

func ValidKind(k string) bool {
	switch k {
	case KindLowStock, KindOutOfStock, KindExpiringSoon, KindCriticalStock:
		return true
	}
	return false
}

// Alert is a row of the derived projection over current stock records.
// Alerts are recomputed from records, never stored; the cache holds the
// rendered slice and is dropped on every stock change event.
type Alert struct {
	Kind          string          `db:"-" json:"kind"`
	StockRecordID string          `db:"stock_record_id" json:"stock_record_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	BranchID      string          `db:"branch_id" json:"branch_id"`
	OnHand        model.Quantity  `db:"on_hand" json:"on_hand"`
	Reserved      model.Quantity  `db:"reserved" json:"reserved"`
	Available     model.Quantity  `db:"available" json:"available"`
	Threshold     *model.Quantity `db:"threshold" json:"threshold,omitempty"`
	SuggestedQty  *model.Quantity `db:"suggested_qty" json:"suggested_quantity,omitempty"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
}
