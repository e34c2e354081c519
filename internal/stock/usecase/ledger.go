package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/logger"
	"github.com/nutree/stock-service/pkg/search"
)

const defaultConflictRetries = 3

type stockUseCase struct {
	repo       stock.Repository
	locker     Locker
	publisher  stock.Publisher
	es         *search.Client
	logger     logger.ZapLogger
	now        func() time.Time
	maxRetries int
}

// NewStockUseCase wires the engine. maxRetries is the version-conflict
// retry budget; values below the default floor are lifted to it.
func NewStockUseCase(repo stock.Repository, locker Locker, pub stock.Publisher, es *search.Client, log logger.ZapLogger, maxRetries int) stock.UseCase {
	if maxRetries < defaultConflictRetries {
		maxRetries = defaultConflictRetries
	}
	return &stockUseCase{
		repo:       repo,
		locker:     locker,
		publisher:  pub,
		es:         es,
		logger:     log,
		now:        time.Now,
		maxRetries: maxRetries,
	}
}

func (uc *stockUseCase) CreateRecord(ctx context.Context, input *dto.CreateRecordInput) (*model.StockRecord, error) {
	if input.ProductID == "" || input.BranchID == "" {
		return nil, apperr.New(apperr.KindInvalidOperation, "product_id and branch_id are required")
	}
	if !input.ReorderQuantity.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidOperation, "reorder_quantity must be positive")
	}
	if input.OnHand.IsNegative() || input.ReorderPoint.IsNegative() {
		return nil, apperr.New(apperr.KindInvalidOperation, "quantities must not be negative")
	}
	// reserved is a function of live reservations only; a fresh record has
	// none, so it always starts at zero.
	if !input.Reserved.IsZero() {
		return nil, apperr.New(apperr.KindInvalidOperation, "initial reserved must be zero; create reservations instead")
	}
	if input.CriticalPoint != nil && input.CriticalPoint.Cmp(input.ReorderPoint) >= 0 {
		return nil, apperr.New(apperr.KindInvalidOperation, "critical_point must be below reorder_point")
	}

	now := uc.now()
	if input.ExpiryDate != nil && !input.ExpiryDate.After(now) {
		return nil, apperr.New(apperr.KindInvalidOperation, "expiry_date must be in the future")
	}

	rec := &model.StockRecord{
		ID:              uuid.New().String(),
		ProductID:       input.ProductID,
		BranchID:        input.BranchID,
		OnHand:          input.OnHand,
		Reserved:        0,
		Available:       input.OnHand,
		ReorderPoint:    input.ReorderPoint,
		ReorderQuantity: input.ReorderQuantity,
		CriticalPoint:   input.CriticalPoint,
		Location:        input.Location,
		BatchNumber:     input.BatchNumber,
		ExpiryDate:      input.ExpiryDate,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The movement log must account for the opening balance, and the
	// stored row must carry the movement's timestamp from the start.
	var opening *model.StockMovement
	if rec.OnHand.IsPositive() {
		rec.LastMovementAt = &now
		opening = &model.StockMovement{
			StockRecordID: rec.ID,
			ProductID:     rec.ProductID,
			BranchID:      rec.BranchID,
			Kind:          model.MovementAdjust,
			Reason:        model.ReasonCorrection,
			Delta:         rec.OnHand,
			OnHandBefore:  0,
			OnHandAfter:   rec.OnHand,
			Note:          "opening balance",
			ActorID:       "system",
			CreatedAt:     now,
		}
	}

	err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
		if err := tx.CreateRecord(ctx, rec); err != nil {
			return err
		}
		if opening == nil {
			return nil
		}
		_, err := tx.AppendMovement(ctx, opening)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.publishChange(ctx, rec, nil)
	return rec, nil
}

func (uc *stockUseCase) GetRecord(ctx context.Context, id string) (*model.StockRecord, error) {
	return uc.repo.GetRecord(ctx, id)
}

func (uc *stockUseCase) FindRecords(ctx context.Context, f *dto.RecordFilters) ([]model.StockRecord, int, error) {
	return uc.repo.FindRecords(ctx, f)
}

func (uc *stockUseCase) DeactivateRecord(ctx context.Context, id string) error {
	return uc.repo.DeactivateRecord(ctx, id)
}

func (uc *stockUseCase) Receive(ctx context.Context, input *dto.ReceiveInput) (*model.StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidOperation, "receive quantity must be positive")
	}
	if input.Reason != model.ReasonPurchase && input.Reason != model.ReasonReturn {
		return nil, apperr.New(apperr.KindInvalidOperation, "invalid receive reason %q", input.Reason)
	}

	release, err := uc.locker.Acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	if m, err := uc.priorMovement(ctx, input.RecordID, model.MovementIn, input.ReferenceID); m != nil || err != nil {
		return m, err
	}

	var movement *model.StockMovement
	err = uc.retryConflict(ctx, func() error {
		rec, err := uc.loadMutable(ctx, input.RecordID)
		if err != nil {
			return err
		}
		newOnHand, err := rec.OnHand.Add(input.Quantity)
		if err != nil {
			return err
		}

		now := uc.now()
		m := uc.newMovement(rec, model.MovementIn, input.Reason, input.Quantity, newOnHand, input.ReferenceID, nil, "", input.ActorID, now)
		uc.applyOnHand(rec, newOnHand, now)

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			_, err := tx.AppendMovement(ctx, m)
			return err
		}); err != nil {
			return err
		}
		movement = m
		uc.publishChange(ctx, rec, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (uc *stockUseCase) Issue(ctx context.Context, input *dto.IssueInput) (*model.StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidOperation, "issue quantity must be positive")
	}
	switch input.Reason {
	case model.ReasonSale, model.ReasonDamage, model.ReasonSample, model.ReasonExpiry:
	default:
		return nil, apperr.New(apperr.KindInvalidOperation, "invalid issue reason %q", input.Reason)
	}

	release, err := uc.locker.Acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	if m, err := uc.priorMovement(ctx, input.RecordID, model.MovementOut, input.ReferenceID); m != nil || err != nil {
		return m, err
	}

	var movement *model.StockMovement
	err = uc.retryConflict(ctx, func() error {
		rec, err := uc.loadMutable(ctx, input.RecordID)
		if err != nil {
			return err
		}
		if rec.Available.Cmp(input.Quantity) < 0 {
			return apperr.New(apperr.KindInsufficientStock,
				"record %s has %s available, requested %s", rec.ID, rec.Available, input.Quantity)
		}
		newOnHand, err := rec.OnHand.Sub(input.Quantity)
		if err != nil {
			return apperr.Wrap(apperr.KindInsufficientStock, err, "issue exceeds on-hand")
		}

		now := uc.now()
		m := uc.newMovement(rec, model.MovementOut, input.Reason, input.Quantity.Neg(), newOnHand, input.ReferenceID, nil, "", input.ActorID, now)
		uc.applyOnHand(rec, newOnHand, now)

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			_, err := tx.AppendMovement(ctx, m)
			return err
		}); err != nil {
			return err
		}
		movement = m
		uc.publishChange(ctx, rec, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (uc *stockUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) (*model.Reservation, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidOperation, "reserve quantity must be positive")
	}
	if input.OrderID == "" {
		return nil, apperr.New(apperr.KindInvalidOperation, "order_id is required")
	}

	release, err := uc.locker.Acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	var reservation *model.Reservation
	err = uc.retryConflict(ctx, func() error {
		rec, err := uc.loadMutable(ctx, input.RecordID)
		if err != nil {
			return err
		}
		if rec.Available.Cmp(input.Quantity) < 0 {
			return apperr.New(apperr.KindInsufficientStock,
				"record %s has %s available, requested %s", rec.ID, rec.Available, input.Quantity)
		}

		now := uc.now()
		newReserved, err := rec.Reserved.Add(input.Quantity)
		if err != nil {
			return err
		}
		res := &model.Reservation{
			ID:            uuid.New().String(),
			StockRecordID: rec.ID,
			Quantity:      input.Quantity,
			OrderID:       input.OrderID,
			Status:        model.ReservationHeld,
			ExpiresAt:     input.ExpiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		uc.applyReserved(rec, newReserved, now)

		// No movement: reserved stock is still physically present.
		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			return tx.CreateReservation(ctx, res)
		}); err != nil {
			return err
		}
		reservation = res
		uc.publishChange(ctx, rec, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (uc *stockUseCase) Commit(ctx context.Context, reservationID, actorID string) (*model.StockMovement, error) {
	res, err := uc.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	release, err := uc.locker.Acquire(ctx, res.StockRecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	var movement *model.StockMovement
	err = uc.retryConflict(ctx, func() error {
		// Re-read under the lock: the sweeper may have expired it.
		res, err := uc.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == model.ReservationCommitted {
			// Idempotent: return the movement the first commit produced.
			m, err := uc.repo.FindMovementByReference(ctx, res.StockRecordID, model.MovementOut, res.OrderID)
			if err != nil {
				return err
			}
			if m == nil {
				return apperr.New(apperr.KindInvariantViolation,
					"reservation %s committed but no movement recorded", res.ID)
			}
			movement = m
			return nil
		}
		if res.IsTerminal() {
			return apperr.New(apperr.KindIllegalTransition, "reservation %s is %s", res.ID, res.Status)
		}

		rec, err := uc.loadMutable(ctx, res.StockRecordID)
		if err != nil {
			return err
		}
		if rec.Reserved.Cmp(res.Quantity) < 0 || rec.OnHand.Cmp(res.Quantity) < 0 {
			// Stored state contradicts the live reservation set. Freeze the
			// record; only an operator recount unfreezes it.
			return uc.violation(ctx, rec, "reservation %s for %s exceeds record state on_hand=%s reserved=%s",
				res.ID, res.Quantity, rec.OnHand, rec.Reserved)
		}

		newOnHand, err := rec.OnHand.Sub(res.Quantity)
		if err != nil {
			return err
		}
		newReserved, err := rec.Reserved.Sub(res.Quantity)
		if err != nil {
			return err
		}

		now := uc.now()
		// The commit movement carries reference_id = order_id and so lives
		// in the same (OUT, reference) idempotency namespace as issue:
		// reusing an order id as an issue reference replays this movement.
		m := uc.newMovement(rec, model.MovementOut, model.ReasonSale, res.Quantity.Neg(), newOnHand, res.OrderID, nil, "", actorID, now)
		rec.OnHand = newOnHand
		uc.applyReserved(rec, newReserved, now)
		rec.LastMovementAt = &now

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateReservationStatus(ctx, res.ID, model.ReservationHeld, model.ReservationCommitted); err != nil {
				return err
			}
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			_, err := tx.AppendMovement(ctx, m)
			return err
		}); err != nil {
			return err
		}
		movement = m
		uc.publishChange(ctx, rec, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (uc *stockUseCase) Release(ctx context.Context, reservationID string) error {
	return uc.releaseHeld(ctx, reservationID, model.ReservationReleased)
}

// releaseHeld moves a HELD reservation to a terminal non-committed state
// and gives its quantity back to available. Shared by Release and the
// expiry sweeper; no movement is written because stock never moved.
func (uc *stockUseCase) releaseHeld(ctx context.Context, reservationID, terminal string) error {
	res, err := uc.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	release, err := uc.locker.Acquire(ctx, res.StockRecordID)
	if err != nil {
		return err
	}
	defer release()

	return uc.retryConflict(ctx, func() error {
		res, err := uc.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.IsTerminal() {
			return apperr.New(apperr.KindIllegalTransition, "reservation %s is %s", res.ID, res.Status)
		}

		rec, err := uc.loadMutable(ctx, res.StockRecordID)
		if err != nil {
			return err
		}
		newReserved, err := rec.Reserved.Sub(res.Quantity)
		if err != nil {
			return uc.violation(ctx, rec, "reservation %s for %s exceeds reserved=%s", res.ID, res.Quantity, rec.Reserved)
		}

		now := uc.now()
		uc.applyReserved(rec, newReserved, now)

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateReservationStatus(ctx, res.ID, model.ReservationHeld, terminal); err != nil {
				return err
			}
			return tx.UpdateRecord(ctx, rec)
		}); err != nil {
			return err
		}
		uc.publishChange(ctx, rec, nil)
		return nil
	})
}

func (uc *stockUseCase) Transfer(ctx context.Context, input *dto.TransferInput) (*model.StockMovement, *model.StockMovement, error) {
	if input.SourceRecordID == input.TargetRecordID {
		return nil, nil, apperr.New(apperr.KindInvalidOperation, "cannot transfer a record to itself")
	}
	if !input.Quantity.IsPositive() {
		return nil, nil, apperr.New(apperr.KindInvalidOperation, "transfer quantity must be positive")
	}

	// Lock both records in ascending id order to avoid deadlock.
	first, second := input.SourceRecordID, input.TargetRecordID
	if second < first {
		first, second = second, first
	}
	releaseFirst, err := uc.locker.Acquire(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	defer releaseFirst()
	releaseSecond, err := uc.locker.Acquire(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	defer releaseSecond()

	if input.ReferenceID != "" {
		out, err := uc.repo.FindMovementByReference(ctx, input.SourceRecordID, model.MovementTransferOut, input.ReferenceID)
		if err != nil {
			return nil, nil, err
		}
		if out != nil {
			in, err := uc.repo.FindMovementByReference(ctx, input.TargetRecordID, model.MovementTransferIn, input.ReferenceID)
			if err != nil {
				return nil, nil, err
			}
			return out, in, nil
		}
	}

	var outMove, inMove *model.StockMovement
	err = uc.retryConflict(ctx, func() error {
		src, err := uc.loadMutable(ctx, input.SourceRecordID)
		if err != nil {
			return err
		}
		dst, err := uc.loadMutable(ctx, input.TargetRecordID)
		if err != nil {
			return err
		}
		if src.Available.Cmp(input.Quantity) < 0 {
			return apperr.New(apperr.KindInsufficientStock,
				"record %s has %s available, requested %s", src.ID, src.Available, input.Quantity)
		}

		srcOnHand, err := src.OnHand.Sub(input.Quantity)
		if err != nil {
			return apperr.Wrap(apperr.KindInsufficientStock, err, "transfer exceeds source on-hand")
		}
		dstOnHand, err := dst.OnHand.Add(input.Quantity)
		if err != nil {
			return err
		}

		transferRef := input.ReferenceID
		if transferRef == "" {
			transferRef = uuid.New().String()
		}

		now := uc.now()
		out := uc.newMovement(src, model.MovementTransferOut, model.ReasonTransfer, input.Quantity.Neg(), srcOnHand, input.ReferenceID, &transferRef, "", input.ActorID, now)
		in := uc.newMovement(dst, model.MovementTransferIn, model.ReasonTransfer, input.Quantity, dstOnHand, input.ReferenceID, &transferRef, "", input.ActorID, now)
		uc.applyOnHand(src, srcOnHand, now)
		uc.applyOnHand(dst, dstOnHand, now)

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, src); err != nil {
				return err
			}
			if err := tx.UpdateRecord(ctx, dst); err != nil {
				return err
			}
			if _, err := tx.AppendMovement(ctx, out); err != nil {
				return err
			}
			_, err := tx.AppendMovement(ctx, in)
			return err
		}); err != nil {
			return err
		}
		outMove, inMove = out, in
		uc.publishChange(ctx, src, out)
		uc.publishChange(ctx, dst, in)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outMove, inMove, nil
}

func (uc *stockUseCase) Adjust(ctx context.Context, input *dto.AdjustInput) (*model.StockMovement, error) {
	if input.Delta.IsZero() {
		return nil, apperr.New(apperr.KindInvalidOperation, "adjust delta must not be zero")
	}
	if !model.ValidReason(input.Reason) {
		return nil, apperr.New(apperr.KindInvalidOperation, "invalid adjust reason %q", input.Reason)
	}

	release, err := uc.locker.Acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	var movement *model.StockMovement
	err = uc.retryConflict(ctx, func() error {
		rec, err := uc.loadMutable(ctx, input.RecordID)
		if err != nil {
			return err
		}
		newOnHand, err := rec.OnHand.ApplyDelta(input.Delta)
		if err != nil {
			if apperr.IsKind(err, apperr.KindUnderflow) {
				return apperr.Wrap(apperr.KindInsufficientStock, err, "adjustment below zero")
			}
			return err
		}
		if newOnHand.Cmp(rec.Reserved) < 0 {
			return apperr.New(apperr.KindInsufficientStock,
				"adjustment leaves on_hand %s below reserved %s; release reservations first", newOnHand, rec.Reserved)
		}

		now := uc.now()
		m := uc.newMovement(rec, model.MovementAdjust, input.Reason, input.Delta, newOnHand, "", nil, input.Note, input.ActorID, now)
		uc.applyOnHand(rec, newOnHand, now)

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			_, err := tx.AppendMovement(ctx, m)
			return err
		}); err != nil {
			return err
		}
		movement = m
		uc.publishChange(ctx, rec, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (uc *stockUseCase) Count(ctx context.Context, input *dto.CountInput) (*model.PhysicalCount, error) {
	if input.CountedQuantity.IsNegative() {
		return nil, apperr.New(apperr.KindInvalidOperation, "counted quantity must not be negative")
	}

	release, err := uc.locker.Acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer release()

	var count *model.PhysicalCount
	err = uc.retryConflict(ctx, func() error {
		// Counts are allowed on frozen records; they are how a record
		// leaves quarantine.
		rec, err := uc.repo.GetRecord(ctx, input.RecordID)
		if err != nil {
			return err
		}
		if !rec.IsActive {
			return apperr.New(apperr.KindInvalidOperation, "stock record %s is inactive", rec.ID)
		}
		if input.CountedQuantity.Cmp(rec.Reserved) < 0 {
			return apperr.New(apperr.KindInsufficientStock,
				"counted quantity %s below reserved %s; release reservations first", input.CountedQuantity, rec.Reserved)
		}

		variance := input.CountedQuantity - rec.OnHand

		now := uc.now()
		c := &model.PhysicalCount{
			ID:              uuid.New().String(),
			StockRecordID:   rec.ID,
			CountedQuantity: input.CountedQuantity,
			SystemQuantity:  rec.OnHand,
			Variance:        variance,
			Note:            input.Note,
			ActorID:         input.ActorID,
			CreatedAt:       now,
		}

		var adjust *model.StockMovement
		if !variance.IsZero() {
			adjust = uc.newMovement(rec, model.MovementAdjust, model.ReasonCorrection, variance, input.CountedQuantity, "", nil, input.Note, input.ActorID, now)
		}
		countMove := uc.newMovement(rec, model.MovementCount, model.ReasonCorrection, 0, input.CountedQuantity, "", nil, input.Note, input.ActorID, now)
		countMove.OnHandBefore = input.CountedQuantity

		rec.OnHand = input.CountedQuantity
		rec.Available = rec.OnHand - rec.Reserved
		rec.LastCountAt = &now
		rec.UpdatedAt = now
		rec.Frozen = false
		if adjust != nil {
			rec.LastMovementAt = &now
		}

		if err := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			if err := tx.CreateCount(ctx, c); err != nil {
				return err
			}
			if adjust != nil {
				if _, err := tx.AppendMovement(ctx, adjust); err != nil {
					return err
				}
			}
			_, err := tx.AppendMovement(ctx, countMove)
			return err
		}); err != nil {
			return err
		}
		count = c
		uc.publishChange(ctx, rec, adjust)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return count, nil
}

// ---- shared internals ----

// retryConflict runs fn, retrying a bounded number of times when the
// compare-and-set inside lost a race. Anything else surfaces immediately.
func (uc *stockUseCase) retryConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= uc.maxRetries; attempt++ {
		err = fn()
		if err == nil || !apperr.IsKind(err, apperr.KindConflict) {
			return err
		}
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.KindTimeout, ctx.Err(), "deadline elapsed during retry")
		}
		uc.logger.Warn("ledger operation lost a race, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return err
}

// loadMutable reads a record and refuses mutation when it is frozen or
// deactivated, or when its stored state already contradicts invariants.
func (uc *stockUseCase) loadMutable(ctx context.Context, id string) (*model.StockRecord, error) {
	rec, err := uc.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Frozen {
		return nil, apperr.New(apperr.KindInvariantViolation, "stock record %s is frozen pending recount", rec.ID)
	}
	if !rec.IsActive {
		return nil, apperr.New(apperr.KindInvalidOperation, "stock record %s is inactive", rec.ID)
	}
	if rec.Reserved.Cmp(rec.OnHand) > 0 || rec.Reserved.IsNegative() {
		return nil, uc.violation(ctx, rec, "stored state invalid: on_hand=%s reserved=%s", rec.OnHand, rec.Reserved)
	}
	rec.Available = rec.OnHand - rec.Reserved
	return rec, nil
}

// violation freezes the record and surfaces InvariantViolation. The
// operation class stays refused until an operator forces a recount.
func (uc *stockUseCase) violation(ctx context.Context, rec *model.StockRecord, format string, args ...interface{}) error {
	err := apperr.New(apperr.KindInvariantViolation, format, args...)
	uc.logger.Error("stock invariant violation detected",
		zap.String("stock_record_id", rec.ID),
		zap.String("product_id", rec.ProductID),
		zap.String("branch_id", rec.BranchID),
		zap.Error(err),
	)
	if fErr := uc.repo.WithinTx(ctx, func(tx stock.Tx) error {
		return tx.FreezeRecord(ctx, rec.ID)
	}); fErr != nil {
		uc.logger.Error("failed to freeze stock record", zap.String("stock_record_id", rec.ID), zap.Error(fErr))
	}
	return err
}

// priorMovement resolves idempotent replays: same (kind, reference) on
// the same record returns the original outcome.
func (uc *stockUseCase) priorMovement(ctx context.Context, recordID, kind, referenceID string) (*model.StockMovement, error) {
	if referenceID == "" {
		return nil, nil
	}
	return uc.repo.FindMovementByReference(ctx, recordID, kind, referenceID)
}

func (uc *stockUseCase) newMovement(rec *model.StockRecord, kind, reason string, delta, after model.Quantity, referenceID string, transferRef *string, note, actorID string, now time.Time) *model.StockMovement {
	var ref *string
	if referenceID != "" {
		ref = &referenceID
	}
	if actorID == "" {
		actorID = "system"
	}
	return &model.StockMovement{
		StockRecordID: rec.ID,
		ProductID:     rec.ProductID,
		BranchID:      rec.BranchID,
		Kind:          kind,
		Reason:        reason,
		Delta:         delta,
		OnHandBefore:  rec.OnHand,
		OnHandAfter:   after,
		ReferenceID:   ref,
		TransferRef:   transferRef,
		Note:          note,
		ActorID:       actorID,
		CreatedAt:     now,
	}
}

func (uc *stockUseCase) applyOnHand(rec *model.StockRecord, newOnHand model.Quantity, now time.Time) {
	rec.OnHand = newOnHand
	rec.Available = rec.OnHand - rec.Reserved
	rec.LastMovementAt = &now
	rec.UpdatedAt = now
}

func (uc *stockUseCase) applyReserved(rec *model.StockRecord, newReserved model.Quantity, now time.Time) {
	rec.Reserved = newReserved
	rec.Available = rec.OnHand - rec.Reserved
	rec.UpdatedAt = now
}
