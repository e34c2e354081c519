package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/internal/stock/dto"
)

const recordColumns = `id, product_id, branch_id, on_hand, reserved, available,
    reorder_point, reorder_quantity, critical_point, location, batch_number,
    expiry_date, last_movement_at, last_count_at, is_active, frozen, version,
    created_at, updated_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PGRepository) CreateRecord(ctx context.Context, rec *model.StockRecord) error {
	return insertRecord(ctx, r.DB, rec)
}

func insertRecord(ctx context.Context, e sqlx.ExtContext, rec *model.StockRecord) error {
	query := `
        INSERT INTO stock_records (
            id, product_id, branch_id, on_hand, reserved,
            reorder_point, reorder_quantity, critical_point, location,
            batch_number, expiry_date, last_movement_at, last_count_at,
            is_active, frozen, version, created_at, updated_at
        )
        VALUES (
            :id, :product_id, :branch_id, :on_hand, :reserved,
            :reorder_point, :reorder_quantity, :critical_point, :location,
            :batch_number, :expiry_date, :last_movement_at, :last_count_at,
            :is_active, :frozen, :version, :created_at, :updated_at
        )
    `
	// available is a generated column, never written.
	_, err := sqlx.NamedExecContext(ctx, e, query, rec)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindConflict, "stock record for product %s at branch %s already exists", rec.ProductID, rec.BranchID)
		}
		return errors.Wrap(err, "create stock record")
	}
	return nil
}

func (r *PGRepository) GetRecord(ctx context.Context, id string) (*model.StockRecord, error) {
	var rec model.StockRecord
	query := `SELECT ` + recordColumns + ` FROM stock_records WHERE id = $1 LIMIT 1`
	if err := r.DB.GetContext(ctx, &rec, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "stock record %s not found", id)
		}
		return nil, errors.Wrap(err, "get stock record")
	}
	return &rec, nil
}

func (r *PGRepository) GetRecordByProductBranch(ctx context.Context, productID, branchID string) (*model.StockRecord, error) {
	var rec model.StockRecord
	query := `SELECT ` + recordColumns + ` FROM stock_records WHERE product_id = $1 AND branch_id = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &rec, query, productID, branchID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "stock record for product %s at branch %s not found", productID, branchID)
		}
		return nil, errors.Wrap(err, "get stock record by product/branch")
	}
	return &rec, nil
}

func (r *PGRepository) FindRecords(ctx context.Context, f *dto.RecordFilters) ([]model.StockRecord, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if !f.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery := "SELECT count(*) FROM stock_records" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count stock records")
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&count)
	}

	query := "SELECT " + recordColumns + " FROM stock_records" + whereClause + " ORDER BY branch_id, product_id"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "prepare stock record query")
	}
	defer nstmt.Close()

	var items []model.StockRecord
	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, errors.Wrap(err, "list stock records")
	}
	return items, count, nil
}

func (r *PGRepository) DeactivateRecord(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE stock_records SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deactivate stock record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "stock record %s not found", id)
	}
	return nil
}

func (r *PGRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	query := `SELECT * FROM reservations WHERE id = $1 LIMIT 1`
	if err := r.DB.GetContext(ctx, &res, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "reservation %s not found", id)
		}
		return nil, errors.Wrap(err, "get reservation")
	}
	return &res, nil
}

func (r *PGRepository) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	var items []model.Reservation
	query := `
        SELECT * FROM reservations
        WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
        ORDER BY expires_at
        LIMIT $3
    `
	if err := r.DB.SelectContext(ctx, &items, query, model.ReservationHeld, now, limit); err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}
	return items, nil
}

func (r *PGRepository) SumHeldQuantity(ctx context.Context, recordID string) (model.Quantity, error) {
	var sum model.Quantity
	query := `SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE stock_record_id = $1 AND status = $2`
	if err := r.DB.GetContext(ctx, &sum, query, recordID, model.ReservationHeld); err != nil {
		return 0, errors.Wrap(err, "sum held reservations")
	}
	return sum, nil
}

func (r *PGRepository) GetMovement(ctx context.Context, id int64) (*model.StockMovement, error) {
	var m model.StockMovement
	query := `SELECT * FROM stock_movements WHERE id = $1 LIMIT 1`
	if err := r.DB.GetContext(ctx, &m, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "movement %d not found", id)
		}
		return nil, errors.Wrap(err, "get movement")
	}
	return &m, nil
}

func (r *PGRepository) FindMovementByReference(ctx context.Context, recordID, kind, referenceID string) (*model.StockMovement, error) {
	var m model.StockMovement
	query := `
        SELECT * FROM stock_movements
        WHERE stock_record_id = $1 AND kind = $2 AND reference_id = $3
        LIMIT 1
    `
	if err := r.DB.GetContext(ctx, &m, query, recordID, kind, referenceID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find movement by reference")
	}
	return &m, nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.StockRecordID != "" {
		conditions = append(conditions, "stock_record_id = :stock_record_id")
		args["stock_record_id"] = f.StockRecordID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = :kind")
		args["kind"] = f.Kind
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count movements")
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&count)
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY id DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "prepare movement query")
	}
	defer nstmt.Close()

	var items []model.StockMovement
	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, errors.Wrap(err, "list movements")
	}
	return items, count, nil
}

func (r *PGRepository) SumMovementDeltas(ctx context.Context, recordID string) (model.Quantity, error) {
	var sum model.Quantity
	query := `SELECT COALESCE(SUM(delta), 0) FROM stock_movements WHERE stock_record_id = $1`
	if err := r.DB.GetContext(ctx, &sum, query, recordID); err != nil {
		return 0, errors.Wrap(err, "sum movement deltas")
	}
	return sum, nil
}

func (r *PGRepository) ValuationRows(ctx context.Context, branchID *string) ([]dto.ValuationRow, error) {
	query := `
        SELECT sr.id AS stock_record_id, sr.product_id, sr.branch_id,
               sr.on_hand, p.unit_price
        FROM stock_records sr
        JOIN products p ON p.id = sr.product_id
        WHERE sr.is_active = TRUE
    `
	args := []interface{}{}
	if branchID != nil && *branchID != "" {
		query += ` AND sr.branch_id = $1`
		args = append(args, *branchID)
	}

	var rowsOut []dto.ValuationRow
	if err := r.DB.SelectContext(ctx, &rowsOut, query, args...); err != nil {
		return nil, errors.Wrap(err, "valuation rows")
	}
	return rowsOut, nil
}

func (r *PGRepository) ListExpiring(ctx context.Context, before time.Time) ([]model.StockRecord, error) {
	var items []model.StockRecord
	query := `
        SELECT ` + recordColumns + ` FROM stock_records
        WHERE is_active = TRUE
          AND expiry_date IS NOT NULL AND expiry_date <= $1
          AND on_hand > 0
        ORDER BY expiry_date
    `
	if err := r.DB.SelectContext(ctx, &items, query, before); err != nil {
		return nil, errors.Wrap(err, "list expiring records")
	}
	return items, nil
}

func (r *PGRepository) WithinTx(ctx context.Context, fn func(tx stock.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) CreateRecord(ctx context.Context, rec *model.StockRecord) error {
	return insertRecord(ctx, t.tx, rec)
}

func (t *pgTx) UpdateRecord(ctx context.Context, rec *model.StockRecord) error {
	query := `
        UPDATE stock_records SET
            on_hand = :on_hand,
            reserved = :reserved,
            reorder_point = :reorder_point,
            reorder_quantity = :reorder_quantity,
            critical_point = :critical_point,
            location = :location,
            batch_number = :batch_number,
            expiry_date = :expiry_date,
            last_movement_at = :last_movement_at,
            last_count_at = :last_count_at,
            is_active = :is_active,
            frozen = :frozen,
            version = version + 1,
            updated_at = :updated_at
        WHERE id = :id AND version = :version
    `
	res, err := t.tx.NamedExecContext(ctx, query, rec)
	if err != nil {
		return errors.Wrap(err, "update stock record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindConflict, "stock record %s was modified concurrently", rec.ID)
	}
	rec.Version++
	return nil
}

func (t *pgTx) AppendMovement(ctx context.Context, m *model.StockMovement) (int64, error) {
	// Defense in depth: the log itself refuses arithmetic drift.
	after, err := m.OnHandBefore.ApplyDelta(m.Delta)
	if err != nil || after != m.OnHandAfter {
		return 0, apperr.New(apperr.KindInvariantViolation,
			"movement snapshot mismatch on record %s: %s + %s != %s",
			m.StockRecordID, m.OnHandBefore, m.Delta, m.OnHandAfter)
	}

	query := `
        INSERT INTO stock_movements (
            stock_record_id, product_id, branch_id, kind, reason, delta,
            on_hand_before, on_hand_after, reference_id, transfer_ref,
            note, actor_id, created_at
        )
        VALUES (
            :stock_record_id, :product_id, :branch_id, :kind, :reason, :delta,
            :on_hand_before, :on_hand_after, :reference_id, :transfer_ref,
            :note, :actor_id, :created_at
        )
        RETURNING id
    `
	nstmt, err := t.tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "prepare movement insert")
	}
	defer nstmt.Close()

	var id int64
	if err := nstmt.GetContext(ctx, &id, m); err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.New(apperr.KindConflict, "movement with reference already exists on record %s", m.StockRecordID)
		}
		return 0, errors.Wrap(err, "append movement")
	}
	m.ID = id
	return id, nil
}

func (t *pgTx) CreateReservation(ctx context.Context, res *model.Reservation) error {
	query := `
        INSERT INTO reservations (id, stock_record_id, quantity, order_id, status, expires_at, created_at, updated_at)
        VALUES (:id, :stock_record_id, :quantity, :order_id, :status, :expires_at, :created_at, :updated_at)
    `
	if _, err := t.tx.NamedExecContext(ctx, query, res); err != nil {
		return errors.Wrap(err, "create reservation")
	}
	return nil
}

func (t *pgTx) UpdateReservationStatus(ctx context.Context, id, from, to string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return errors.Wrap(err, "update reservation status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindIllegalTransition, "reservation %s is not in state %s", id, from)
	}
	return nil
}

func (t *pgTx) CreateCount(ctx context.Context, c *model.PhysicalCount) error {
	query := `
        INSERT INTO physical_counts (id, stock_record_id, counted_quantity, system_quantity, variance, note, actor_id, created_at)
        VALUES (:id, :stock_record_id, :counted_quantity, :system_quantity, :variance, :note, :actor_id, :created_at)
    `
	if _, err := t.tx.NamedExecContext(ctx, query, c); err != nil {
		return errors.Wrap(err, "create physical count")
	}
	return nil
}

func (t *pgTx) FreezeRecord(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE stock_records SET frozen = TRUE, updated_at = now() WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "freeze stock record")
	}
	return nil
}
