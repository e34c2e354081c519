package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nutree/stock-service/internal/alert"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const alertColumns = `id AS stock_record_id, product_id, branch_id, on_hand, reserved, available`

func (r *PGRepository) selectAlerts(ctx context.Context, kind, query string, args ...interface{}) ([]alert.Alert, error) {
	var items []alert.Alert
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, errors.Wrapf(err, "query %s alerts", kind)
	}
	for i := range items {
		items[i].Kind = kind
	}
	return items, nil
}

func (r *PGRepository) LowStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	query := `
        SELECT ` + alertColumns + `,
               reorder_point AS threshold, reorder_quantity AS suggested_qty
        FROM stock_records
        WHERE is_active = TRUE AND available > 0 AND available <= reorder_point
    `
	query, args := withBranch(query, f.BranchID)
	return r.selectAlerts(ctx, alert.KindLowStock, query+" ORDER BY branch_id, product_id", args...)
}

func (r *PGRepository) OutOfStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	query := `
        SELECT ` + alertColumns + `,
               reorder_quantity AS suggested_qty
        FROM stock_records
        WHERE is_active = TRUE AND available = 0
    `
	query, args := withBranch(query, f.BranchID)
	return r.selectAlerts(ctx, alert.KindOutOfStock, query+" ORDER BY branch_id, product_id", args...)
}

func (r *PGRepository) ExpiringSoon(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	days := f.WithinDays
	if days <= 0 {
		days = 7
	}
	query := `
        SELECT ` + alertColumns + `, expiry_date
        FROM stock_records
        WHERE is_active = TRUE AND on_hand > 0
          AND expiry_date IS NOT NULL
          AND expiry_date <= now() + make_interval(days => $1)
    `
	args := []interface{}{days}
	if f.BranchID != "" {
		query += fmt.Sprintf(" AND branch_id = $%d", len(args)+1)
		args = append(args, f.BranchID)
	}
	return r.selectAlerts(ctx, alert.KindExpiringSoon, query+" ORDER BY expiry_date", args...)
}

func (r *PGRepository) CriticalStock(ctx context.Context, f *alert.Filters) ([]alert.Alert, error) {
	query := `
        SELECT ` + alertColumns + `,
               critical_point AS threshold, reorder_quantity AS suggested_qty
        FROM stock_records
        WHERE is_active = TRUE AND critical_point IS NOT NULL AND available <= critical_point
    `
	query, args := withBranch(query, f.BranchID)
	return r.selectAlerts(ctx, alert.KindCriticalStock, query+" ORDER BY branch_id, product_id", args...)
}

func withBranch(query, branchID string) (string, []interface{}) {
	if branchID == "" {
		return query, nil
	}
	return query + " AND branch_id = $1", []interface{}{branchID}
}
