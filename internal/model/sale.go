package model

import (
	"errors"
	"time"
)

// PendingSale is a sale captured on the device that has not yet been
// acknowledged by the remote authority. (VendorID, LocalID, DeviceID) is the
// idempotency key: resubmitting the same tuple must never create a second
// remote sale.
type PendingSale struct {
	LocalID       string     `json:"local_id"`
	DeviceID      string     `json:"device_id"`
	VendorID      string     `json:"vendor_id"`
	ClientRef     string     `json:"client_ref"`
	LineItems     []LineItem `json:"line_items"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"payment_method"`
	Timestamp     time.Time  `json:"timestamp"`
	Evidence      []Evidence `json:"evidence,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
}

// LineItem is a single product line within a sale.
type LineItem struct {
	Product   string  `json:"product"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Evidence is an optional binary attachment (delivery photo, signed slip),
// carried base64-encoded.
type Evidence struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

// Validate checks the fields the device can verify before queueing.
func (s *PendingSale) Validate() error {
	if s.VendorID == "" {
		return errors.New("vendor_id is required")
	}
	if s.ClientRef == "" {
		return errors.New("client_ref is required")
	}
	if len(s.LineItems) == 0 {
		return errors.New("at least one line item is required")
	}
	if s.PaymentMethod == "" {
		return errors.New("payment_method is required")
	}
	return nil
}

// EvidenceSize returns the total size in bytes of the base64 evidence
// payloads. Used to stretch the per-submission timeout.
func (s *PendingSale) EvidenceSize() int {
	size := 0
	for _, e := range s.Evidence {
		size += len(e.Data)
	}
	return size
}
