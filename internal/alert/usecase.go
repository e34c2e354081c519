package alert

import "context"

type UseCase interface {
	// ListAlerts returns the projection for one kind, or every kind when
	// kind is empty. Served cache-aside; a miss recomputes from SQL.
	ListAlerts(ctx context.Context, kind string, f *Filters) ([]Alert, error)

	// Invalidate drops cached projections for a branch after a stock
	// change event. Consumers invalidate, they never patch.
	Invalidate(ctx context.Context, branchID string) error
}
