package repository

import (
	"context"

	"ruteo-sync-agent/internal/model"
)

// QueueStore defines durable access to the pending transaction queues.
// Every mutation is committed before the call returns; a crash between an
// enqueue and its flush is not observable.
type QueueStore interface {
	// EnqueueSale appends a sale to the pending queue.
	EnqueueSale(ctx context.Context, sale *model.PendingSale) error

	// EnqueueAction appends an order action to the pending queue.
	EnqueueAction(ctx context.Context, action *model.PendingAction) error

	// ListPendingSales returns the vendor's queued sales in insertion order.
	ListPendingSales(ctx context.Context, vendorID string) ([]model.PendingSale, error)

	// ListPendingActions returns the vendor's queued actions in insertion order.
	ListPendingActions(ctx context.Context, vendorID string) ([]model.PendingAction, error)

	// RemoveSale deletes a sale by local id once the authority confirmed it.
	RemoveSale(ctx context.Context, localID string) error

	// RemoveAction deletes an action by local id once the authority confirmed it.
	RemoveAction(ctx context.Context, localID string) error

	// MarkSaleAttempt increments the sale's attempt counter.
	MarkSaleAttempt(ctx context.Context, localID string) error

	// MarkActionAttempt increments the action's attempt counter.
	MarkActionAttempt(ctx context.Context, localID string) error

	// PendingCount returns the number of queued sales plus actions for a vendor.
	PendingCount(ctx context.Context, vendorID string) (int, error)

	// VendorsWithPending returns the vendors that currently have queued work.
	VendorsWithPending(ctx context.Context) ([]string, error)
}

// ShiftStore defines durable access to the last known shift snapshot.
type ShiftStore interface {
	// SaveSnapshot persists the snapshot, stamping WrittenAt.
	SaveSnapshot(ctx context.Context, snap *model.ShiftSnapshot) error

	// Snapshot returns the vendor's persisted snapshot, or nil if none exists.
	Snapshot(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error)

	// ClearSnapshot removes the vendor's persisted snapshot.
	ClearSnapshot(ctx context.Context, vendorID string) error
}

// Store is the full durable local store: queues, shift snapshot and the
// device identity that survives restarts.
type Store interface {
	QueueStore
	ShiftStore

	// DeviceID returns the stable per-installation identity, generating and
	// persisting one on first use.
	DeviceID(ctx context.Context) (string, error)

	// Close closes the underlying database.
	Close() error
}
