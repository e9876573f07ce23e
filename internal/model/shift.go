package model

import "time"

// ShiftStatus is the lifecycle state of a vendor's daily shift.
type ShiftStatus string

const (
	ShiftClosed ShiftStatus = "CLOSED"
	ShiftOpen   ShiftStatus = "OPEN"
)

// ShiftSnapshot is the last known shift state for a vendor. At most one OPEN
// snapshot per (vendor, day) is authoritative; a locally persisted copy is
// only trusted while it is younger than the configured stale window.
type ShiftSnapshot struct {
	VendorID  string      `json:"vendor_id"`
	Day       string      `json:"day"` // vendor-local calendar date, YYYY-MM-DD
	OpenedAt  time.Time   `json:"opened_at"`
	Status    ShiftStatus `json:"status"`
	WrittenAt time.Time   `json:"written_at"` // set by the store on persist
}

// IsOpen reports whether the snapshot represents an open shift.
func (s *ShiftSnapshot) IsOpen() bool {
	return s != nil && s.Status == ShiftOpen
}

// StaleAt reports whether the snapshot is too old to trust at the given
// instant.
func (s *ShiftSnapshot) StaleAt(now time.Time, window time.Duration) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.WrittenAt) > window
}

// CloseSummary is the authority's reconciliation result for a closed shift.
type CloseSummary struct {
	VendorID   string    `json:"vendor_id"`
	Day        string    `json:"day"`
	SalesCount int       `json:"sales_count"`
	SalesTotal float64   `json:"sales_total"`
	ClosedAt   time.Time `json:"closed_at"`
}
