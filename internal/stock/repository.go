package stock

import (
	"context"
	"time"

	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock/dto"
)

// Repository is the persistent store behind the ledger. Reads are plain;
// every mutation happens inside WithinTx so that a record update, its
// movement, and any reservation or count change commit together or not
// at all.
type Repository interface {
	// Stock records
	CreateRecord(ctx context.Context, rec *model.StockRecord) error
	GetRecord(ctx context.Context, id string) (*model.StockRecord, error)
	GetRecordByProductBranch(ctx context.Context, productID, branchID string) (*model.StockRecord, error)
	FindRecords(ctx context.Context, f *dto.RecordFilters) ([]model.StockRecord, int, error)
	DeactivateRecord(ctx context.Context, id string) error

	// Reservations
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	SumHeldQuantity(ctx context.Context, recordID string) (model.Quantity, error)

	// Movement log
	GetMovement(ctx context.Context, id int64) (*model.StockMovement, error)
	FindMovementByReference(ctx context.Context, recordID, kind, referenceID string) (*model.StockMovement, error)
	ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error)
	SumMovementDeltas(ctx context.Context, recordID string) (model.Quantity, error)

	// Read-side projections
	ValuationRows(ctx context.Context, branchID *string) ([]dto.ValuationRow, error)
	ListExpiring(ctx context.Context, before time.Time) ([]model.StockRecord, error)

	// Transaction scope
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the mutating surface available inside one transaction.
type Tx interface {
	CreateRecord(ctx context.Context, rec *model.StockRecord) error

	// UpdateRecord is a compare-and-set on the record's version column.
	// A lost race surfaces as a Conflict error; the engine retries.
	UpdateRecord(ctx context.Context, rec *model.StockRecord) error

	// AppendMovement writes one immutable log entry and returns its id.
	// Appends where on_hand_before + delta != on_hand_after are rejected
	// with InvariantViolation regardless of what the engine computed.
	AppendMovement(ctx context.Context, m *model.StockMovement) (int64, error)

	CreateReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservationStatus(ctx context.Context, id, from, to string) error
	CreateCount(ctx context.Context, c *model.PhysicalCount) error

	// FreezeRecord quarantines a record after a detected invariant
	// violation. Cleared only by an accepted physical count.
	FreezeRecord(ctx context.Context, id string) error
}
