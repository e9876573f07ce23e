package cache

import "context"

// DayTotals are the optimistic per-day sale counters shown in the UI while
// records are still pending. They are derived state: cleared on shift close
// and rebuilt from captures, never treated as authoritative.
type DayTotals struct {
	SalesCount int     `json:"sales_count"`
	SalesTotal float64 `json:"sales_total"`
}

// CounterStore tracks per-vendor, per-day sale counters.
type CounterStore interface {
	// AddSale bumps the vendor's counters for the day.
	AddSale(ctx context.Context, vendorID, day string, amount float64) error

	// Totals returns the vendor's counters for the day (zero value if none).
	Totals(ctx context.Context, vendorID, day string) (DayTotals, error)

	// Reset clears the vendor's counters for the day.
	Reset(ctx context.Context, vendorID, day string) error

	// Close releases any resources held by the store.
	Close() error
}
