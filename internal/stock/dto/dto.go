package dto

import (
	"time"

	"github.com/nutree/stock-service/internal/model"
)

type RecordFilters struct {
	ProductID       string
	BranchID        string
	IncludeInactive bool
	Page            int
	PageSize        int
}

type MovementFilters struct {
	StockRecordID string
	ProductID     string
	BranchID      string
	Kind          string
	ReferenceID   string
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	PageSize      int
}

type Availability struct {
	StockRecordID  string         `json:"stock_record_id"`
	OnHand         model.Quantity `json:"on_hand"`
	Reserved       model.Quantity `json:"reserved"`
	Available      model.Quantity `json:"available"`
	LastMovementAt *time.Time     `json:"last_movement_at"`
}

// ValuationRow is one record joined to its catalog unit price. The
// product registry is external; we read its price, nothing else.
type ValuationRow struct {
	StockRecordID string         `db:"stock_record_id"`
	ProductID     string         `db:"product_id"`
	BranchID      string         `db:"branch_id"`
	OnHand        model.Quantity `db:"on_hand"`
	UnitPrice     model.Money    `db:"unit_price"`
}

type Valuation struct {
	BranchID      *string        `json:"branch_id"`
	TotalValue    model.Money    `json:"total_value"`
	ItemCount     int            `json:"item_count"`
	TotalQuantity model.Quantity `json:"total_quantity"`
}

type ExpiringEntry struct {
	Record          model.StockRecord `json:"record"`
	DaysUntilExpiry int               `json:"days_until_expiry"`
	Quantity        model.Quantity    `json:"quantity"`
}

// StockEvent is published after every committed mutation. Consumers use
// it to invalidate derived projections; they never mutate them in place.
type StockEvent struct {
	StockRecordID string    `json:"stock_record_id"`
	ProductID     string    `json:"product_id"`
	BranchID      string    `json:"branch_id"`
	MovementID    *int64    `json:"movement_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
