package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/internal/stock/dto"
)

// fakeRepo is an in-memory Repository with the same contract as the
// postgres implementation: copy-out reads, CAS on version, unique
// movement references, snapshot-consistency checks in the log.
type fakeRepo struct {
	mu           sync.Mutex
	records      map[string]*model.StockRecord
	reservations map[string]*model.Reservation
	movements    []*model.StockMovement
	counts       []*model.PhysicalCount
	prices       map[string]model.Money
	nextMoveID   int64

	// conflictUpdates makes the next n UpdateRecord calls lose the CAS.
	conflictUpdates int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:      make(map[string]*model.StockRecord),
		reservations: make(map[string]*model.Reservation),
		prices:       make(map[string]model.Money),
	}
}

func copyRecord(rec *model.StockRecord) *model.StockRecord {
	c := *rec
	return &c
}

func copyReservation(res *model.Reservation) *model.Reservation {
	c := *res
	return &c
}

func (r *fakeRepo) CreateRecord(ctx context.Context, rec *model.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertRecordLocked(rec)
}

func (r *fakeRepo) insertRecordLocked(rec *model.StockRecord) error {
	for _, existing := range r.records {
		if existing.ProductID == rec.ProductID && existing.BranchID == rec.BranchID {
			return apperr.New(apperr.KindConflict, "stock record for product %s at branch %s already exists", rec.ProductID, rec.BranchID)
		}
	}
	r.records[rec.ID] = copyRecord(rec)
	return nil
}

func (r *fakeRepo) GetRecord(ctx context.Context, id string) (*model.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "stock record %s not found", id)
	}
	return copyRecord(rec), nil
}

func (r *fakeRepo) GetRecordByProductBranch(ctx context.Context, productID, branchID string) (*model.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ProductID == productID && rec.BranchID == branchID {
			return copyRecord(rec), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "stock record for product %s at branch %s not found", productID, branchID)
}

func (r *fakeRepo) FindRecords(ctx context.Context, f *dto.RecordFilters) ([]model.StockRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.StockRecord
	for _, rec := range r.records {
		if f.ProductID != "" && rec.ProductID != f.ProductID {
			continue
		}
		if f.BranchID != "" && rec.BranchID != f.BranchID {
			continue
		}
		if !f.IncludeInactive && !rec.IsActive {
			continue
		}
		items = append(items, *rec)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].BranchID != items[j].BranchID {
			return items[i].BranchID < items[j].BranchID
		}
		return items[i].ProductID < items[j].ProductID
	})
	total := len(items)
	if f.PageSize > 0 {
		start := (f.Page - 1) * f.PageSize
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		items = items[start:end]
	}
	return items, total, nil
}

func (r *fakeRepo) DeactivateRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "stock record %s not found", id)
	}
	rec.IsActive = false
	return nil
}

func (r *fakeRepo) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "reservation %s not found", id)
	}
	return copyReservation(res), nil
}

func (r *fakeRepo) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.Reservation
	for _, res := range r.reservations {
		if res.Status == model.ReservationHeld && res.ExpiresAt != nil && !res.ExpiresAt.After(now) {
			items = append(items, *res)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ExpiresAt.Before(*items[j].ExpiresAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeRepo) SumHeldQuantity(ctx context.Context, recordID string) (model.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum model.Quantity
	for _, res := range r.reservations {
		if res.StockRecordID == recordID && res.Status == model.ReservationHeld {
			sum += res.Quantity
		}
	}
	return sum, nil
}

func (r *fakeRepo) GetMovement(ctx context.Context, id int64) (*model.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.ID == id {
			c := *m
			return &c, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "movement %d not found", id)
}

func (r *fakeRepo) FindMovementByReference(ctx context.Context, recordID, kind, referenceID string) (*model.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByReferenceLocked(recordID, kind, referenceID), nil
}

func (r *fakeRepo) findByReferenceLocked(recordID, kind, referenceID string) *model.StockMovement {
	for _, m := range r.movements {
		if m.StockRecordID == recordID && m.Kind == kind && m.ReferenceID != nil && *m.ReferenceID == referenceID {
			c := *m
			return &c
		}
	}
	return nil
}

func (r *fakeRepo) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.StockMovement
	for _, m := range r.movements {
		if f.StockRecordID != "" && m.StockRecordID != f.StockRecordID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.BranchID != "" && m.BranchID != f.BranchID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.ReferenceID != "" && (m.ReferenceID == nil || *m.ReferenceID != f.ReferenceID) {
			continue
		}
		if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
			continue
		}
		items = append(items, *m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	total := len(items)
	if f.PageSize > 0 {
		start := (f.Page - 1) * f.PageSize
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		items = items[start:end]
	}
	return items, total, nil
}

func (r *fakeRepo) SumMovementDeltas(ctx context.Context, recordID string) (model.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum model.Quantity
	for _, m := range r.movements {
		if m.StockRecordID == recordID {
			sum += m.Delta
		}
	}
	return sum, nil
}

func (r *fakeRepo) ValuationRows(ctx context.Context, branchID *string) ([]dto.ValuationRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []dto.ValuationRow
	for _, rec := range r.records {
		if !rec.IsActive {
			continue
		}
		if branchID != nil && *branchID != "" && rec.BranchID != *branchID {
			continue
		}
		price, ok := r.prices[rec.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, dto.ValuationRow{
			StockRecordID: rec.ID,
			ProductID:     rec.ProductID,
			BranchID:      rec.BranchID,
			OnHand:        rec.OnHand,
			UnitPrice:     price,
		})
	}
	return rows, nil
}

func (r *fakeRepo) ListExpiring(ctx context.Context, before time.Time) ([]model.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.StockRecord
	for _, rec := range r.records {
		if !rec.IsActive || rec.ExpiryDate == nil || rec.OnHand <= 0 {
			continue
		}
		if rec.ExpiryDate.After(before) {
			continue
		}
		items = append(items, *rec)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ExpiryDate.Before(*items[j].ExpiryDate) })
	return items, nil
}

// WithinTx stages every mutation and commits only when fn succeeds,
// mirroring the real transaction boundary.
func (r *fakeRepo) WithinTx(ctx context.Context, fn func(tx stock.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &fakeTx{repo: r}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type fakeTx struct {
	repo    *fakeRepo
	applied []func()
}

func (t *fakeTx) commit() {
	for _, apply := range t.applied {
		apply()
	}
}

func (t *fakeTx) CreateRecord(ctx context.Context, rec *model.StockRecord) error {
	return t.repo.insertRecordLocked(rec)
}

func (t *fakeTx) UpdateRecord(ctx context.Context, rec *model.StockRecord) error {
	stored, ok := t.repo.records[rec.ID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "stock record %s not found", rec.ID)
	}
	if t.repo.conflictUpdates > 0 {
		t.repo.conflictUpdates--
		return apperr.New(apperr.KindConflict, "stock record %s was modified concurrently", rec.ID)
	}
	if stored.Version != rec.Version {
		return apperr.New(apperr.KindConflict, "stock record %s was modified concurrently", rec.ID)
	}
	rec.Version++
	snapshot := copyRecord(rec)
	snapshot.Available = snapshot.OnHand - snapshot.Reserved
	t.applied = append(t.applied, func() {
		t.repo.records[snapshot.ID] = snapshot
	})
	return nil
}

func (t *fakeTx) AppendMovement(ctx context.Context, m *model.StockMovement) (int64, error) {
	after, err := m.OnHandBefore.ApplyDelta(m.Delta)
	if err != nil || after != m.OnHandAfter {
		return 0, apperr.New(apperr.KindInvariantViolation,
			"movement snapshot mismatch on record %s: %s + %s != %s",
			m.StockRecordID, m.OnHandBefore, m.Delta, m.OnHandAfter)
	}
	if m.ReferenceID != nil {
		if prior := t.repo.findByReferenceLocked(m.StockRecordID, m.Kind, *m.ReferenceID); prior != nil {
			return 0, apperr.New(apperr.KindConflict, "movement with reference already exists on record %s", m.StockRecordID)
		}
	}
	t.repo.nextMoveID++
	m.ID = t.repo.nextMoveID
	snapshot := *m
	t.applied = append(t.applied, func() {
		t.repo.movements = append(t.repo.movements, &snapshot)
	})
	return m.ID, nil
}

func (t *fakeTx) CreateReservation(ctx context.Context, res *model.Reservation) error {
	snapshot := copyReservation(res)
	t.applied = append(t.applied, func() {
		t.repo.reservations[snapshot.ID] = snapshot
	})
	return nil
}

func (t *fakeTx) UpdateReservationStatus(ctx context.Context, id, from, to string) error {
	res, ok := t.repo.reservations[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "reservation %s not found", id)
	}
	if res.Status != from {
		return apperr.New(apperr.KindIllegalTransition, "reservation %s is not in state %s", id, from)
	}
	t.applied = append(t.applied, func() {
		t.repo.reservations[id].Status = to
	})
	return nil
}

func (t *fakeTx) CreateCount(ctx context.Context, c *model.PhysicalCount) error {
	snapshot := *c
	t.applied = append(t.applied, func() {
		t.repo.counts = append(t.repo.counts, &snapshot)
	})
	return nil
}

func (t *fakeTx) FreezeRecord(ctx context.Context, id string) error {
	t.applied = append(t.applied, func() {
		if rec, ok := t.repo.records[id]; ok {
			rec.Frozen = true
		}
	})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*dto.StockEvent
}

func (p *fakePublisher) PublishStockChanged(ctx context.Context, ev *dto.StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
