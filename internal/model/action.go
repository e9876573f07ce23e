package model

import (
	"errors"
	"time"
)

// ActionKind identifies the order status change being reported.
type ActionKind string

const (
	ActionDelivered    ActionKind = "DELIVERED"
	ActionNotDelivered ActionKind = "NOT_DELIVERED"
)

// PendingAction is an order status change (delivered / not delivered) awaiting
// acknowledgment by the remote authority. The authority keys resubmissions on
// (OrderRef, Kind, Timestamp).
type PendingAction struct {
	LocalID       string     `json:"local_id"`
	DeviceID      string     `json:"device_id"`
	VendorID      string     `json:"vendor_id"`
	Kind          ActionKind `json:"kind"`
	OrderRef      string     `json:"order_ref"`
	Reason        string     `json:"reason,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	AttemptCount  int        `json:"attempt_count"`
}

// Validate enforces the per-kind required fields.
func (a *PendingAction) Validate() error {
	if a.VendorID == "" {
		return errors.New("vendor_id is required")
	}
	if a.OrderRef == "" {
		return errors.New("order_ref is required")
	}
	switch a.Kind {
	case ActionDelivered:
		if a.PaymentMethod == "" {
			return errors.New("payment_method is required for DELIVERED")
		}
	case ActionNotDelivered:
		if a.Reason == "" {
			return errors.New("reason is required for NOT_DELIVERED")
		}
	default:
		return errors.New("kind must be DELIVERED or NOT_DELIVERED")
	}
	return nil
}
