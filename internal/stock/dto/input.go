package dto

import (
	"time"

	"github.com/nutree/stock-service/internal/model"
)

type CreateRecordInput struct {
	ProductID       string          `json:"product_id"`
	BranchID        string          `json:"branch_id"`
	OnHand          model.Quantity  `json:"on_hand"`
	Reserved        model.Quantity  `json:"reserved"`
	ReorderPoint    model.Quantity  `json:"reorder_point"`
	ReorderQuantity model.Quantity  `json:"reorder_quantity"`
	CriticalPoint   *model.Quantity `json:"critical_point"`
	Location        *string         `json:"location"`
	BatchNumber     *string         `json:"batch_number"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
}

type ReceiveInput struct {
	RecordID    string         `json:"-"`
	Quantity    model.Quantity `json:"quantity"`
	Reason      string         `json:"reason"` // purchase | return
	ReferenceID string         `json:"reference_id"`
	ActorID     string         `json:"-"`
}

type IssueInput struct {
	RecordID    string         `json:"-"`
	Quantity    model.Quantity `json:"quantity"`
	Reason      string         `json:"reason"` // sale | damage | sample | expiry
	ReferenceID string         `json:"reference_id"`
	ActorID     string         `json:"-"`
}

type ReserveInput struct {
	RecordID  string         `json:"-"`
	Quantity  model.Quantity `json:"quantity"`
	OrderID   string         `json:"order_id"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

type TransferInput struct {
	SourceRecordID string         `json:"-"`
	TargetRecordID string         `json:"-"`
	Quantity       model.Quantity `json:"quantity"`
	ReferenceID    string         `json:"reference_id"`
	ActorID        string         `json:"-"`
}

type AdjustInput struct {
	RecordID string         `json:"-"`
	Delta    model.Quantity `json:"delta"` // signed
	Reason   string         `json:"reason"`
	Note     string         `json:"note"`
	ActorID  string         `json:"-"`
}

type CountInput struct {
	RecordID        string         `json:"-"`
	CountedQuantity model.Quantity `json:"counted_quantity"`
	Note            string         `json:"note"`
	ActorID         string         `json:"-"`
}
