package stock

import (
	"context"

	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
)

// UseCase is the ledger engine, the sole mutator of stock state. Every
// operation is atomic and serialized per stock record; deadlines ride on
// the context and expire waits with Timeout and no side effects.
type UseCase interface {
	// Record registry
	CreateRecord(ctx context.Context, input *dto.CreateRecordInput) (*model.StockRecord, error)
	GetRecord(ctx context.Context, id string) (*model.StockRecord, error)
	FindRecords(ctx context.Context, f *dto.RecordFilters) ([]model.StockRecord, int, error)
	DeactivateRecord(ctx context.Context, id string) error

	// Ledger operations
	Receive(ctx context.Context, input *dto.ReceiveInput) (*model.StockMovement, error)
	Issue(ctx context.Context, input *dto.IssueInput) (*model.StockMovement, error)
	Reserve(ctx context.Context, input *dto.ReserveInput) (*model.Reservation, error)
	Commit(ctx context.Context, reservationID, actorID string) (*model.StockMovement, error)
	Release(ctx context.Context, reservationID string) error
	Transfer(ctx context.Context, input *dto.TransferInput) (*model.StockMovement, *model.StockMovement, error)
	Adjust(ctx context.Context, input *dto.AdjustInput) (*model.StockMovement, error)
	Count(ctx context.Context, input *dto.CountInput) (*model.PhysicalCount, error)

	// Expiry sweeping
	SweepExpired(ctx context.Context) (int, error)

	// Query surface
	GetAvailability(ctx context.Context, recordID string) (*dto.Availability, error)
	Valuation(ctx context.Context, branchID *string) (*dto.Valuation, error)
	ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error)
	SearchMovements(ctx context.Context, query string, page, pageSize int) ([]model.StockMovement, int, error)
	ListExpiring(ctx context.Context, withinDays int) ([]dto.ExpiringEntry, error)
}
