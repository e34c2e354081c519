package alert

import "context"

type Filters struct {
	BranchID   string
	WithinDays int
}

// Repository computes alert projections with SQL over stock_records.
type Repository interface {
	LowStock(ctx context.Context, f *Filters) ([]Alert, error)
	OutOfStock(ctx context.Context, f *Filters) ([]Alert, error)
	ExpiringSoon(ctx context.Context, f *Filters) ([]Alert, error)
	CriticalStock(ctx context.Context, f *Filters) ([]Alert, error)
}
