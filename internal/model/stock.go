package model

import "time"

// Movement kinds.
const (
	MovementIn          = "IN"
	MovementOut         = "OUT"
	MovementAdjust      = "ADJUST"
	MovementTransferOut = "TRANSFER_OUT"
	MovementTransferIn  = "TRANSFER_IN"
	MovementCount       = "COUNT"
)

// Movement reasons.
const (
	ReasonPurchase   = "purchase"
	ReasonSale       = "sale"
	ReasonReturn     = "return"
	ReasonTransfer   = "transfer"
	ReasonDamage     = "damage"
	ReasonExpiry     = "expiry"
	ReasonCorrection = "correction"
	ReasonSample     = "sample"
)

// Reservation statuses. HELD is the only live state; the rest are terminal.
const (
	ReservationHeld      = "HELD"
	ReservationCommitted = "COMMITTED"
	ReservationReleased  = "RELEASED"
	ReservationExpired   = "EXPIRED"
)

// StockRecord is the per (product, branch) row. on_hand and reserved are
// written only by the ledger engine; available_quantity is a generated
// column in the database and derived in memory.
type StockRecord struct {
	ID              string     `db:"id" json:"id"`
	ProductID       string     `db:"product_id" json:"product_id"`
	BranchID        string     `db:"branch_id" json:"branch_id"`
	OnHand          Quantity   `db:"on_hand" json:"on_hand"`
	Reserved        Quantity   `db:"reserved" json:"reserved"`
	Available       Quantity   `db:"available" json:"available"`
	ReorderPoint    Quantity   `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity Quantity   `db:"reorder_quantity" json:"reorder_quantity"`
	CriticalPoint   *Quantity  `db:"critical_point" json:"critical_point"`
	Location        *string    `db:"location" json:"location"`
	BatchNumber     *string    `db:"batch_number" json:"batch_number"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date"`
	LastMovementAt  *time.Time `db:"last_movement_at" json:"last_movement_at"`
	LastCountAt     *time.Time `db:"last_count_at" json:"last_count_at"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	Frozen          bool       `db:"frozen" json:"frozen"`
	Version         int64      `db:"version" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// StockMovement is one immutable entry of the append-only movement log.
// IDs are assigned by the store and are monotone; within one record the id
// order equals the commit order of the operations that produced them.
type StockMovement struct {
	ID            int64     `db:"id" json:"id"`
	StockRecordID string    `db:"stock_record_id" json:"stock_record_id"`
	ProductID     string    `db:"product_id" json:"product_id"`
	BranchID      string    `db:"branch_id" json:"branch_id"`
	Kind          string    `db:"kind" json:"kind"`
	Reason        string    `db:"reason" json:"reason"`
	Delta         Quantity  `db:"delta" json:"delta"`
	OnHandBefore  Quantity  `db:"on_hand_before" json:"on_hand_before"`
	OnHandAfter   Quantity  `db:"on_hand_after" json:"on_hand_after"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id"`
	TransferRef   *string   `db:"transfer_ref" json:"transfer_ref"`
	Note          string    `db:"note" json:"note"`
	ActorID       string    `db:"actor_id" json:"actor_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Reservation is a named hold against a stock record. The held stock stays
// physically present, so reservations never write movements on their own.
type Reservation struct {
	ID            string     `db:"id" json:"id"`
	StockRecordID string     `db:"stock_record_id" json:"stock_record_id"`
	Quantity      Quantity   `db:"quantity" json:"quantity"`
	OrderID       string     `db:"order_id" json:"order_id"`
	Status        string     `db:"status" json:"status"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *Reservation) IsTerminal() bool {
	return r.Status != ReservationHeld
}

// PhysicalCount records an accepted recount. The variance, when non-zero,
// is applied as a correction ADJUST in the same transaction.
type PhysicalCount struct {
	ID              string    `db:"id" json:"id"`
	StockRecordID   string    `db:"stock_record_id" json:"stock_record_id"`
	CountedQuantity Quantity  `db:"counted_quantity" json:"counted_quantity"`
	SystemQuantity  Quantity  `db:"system_quantity" json:"system_quantity"`
	Variance        Quantity  `db:"variance" json:"variance"`
	Note            string    `db:"note" json:"note"`
	ActorID         string    `db:"actor_id" json:"actor_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ValidKind reports whether k is a known movement kind.
func ValidKind(k string) bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjust, MovementTransferOut, MovementTransferIn, MovementCount:
		return true
	}
	return false
}

// ValidReason reports whether r is a known movement reason.
func ValidReason(r string) bool {
	switch r {
	case ReasonPurchase, ReasonSale, ReasonReturn, ReasonTransfer, ReasonDamage, ReasonExpiry, ReasonCorrection, ReasonSample:
		return true
	}
	return false
}
