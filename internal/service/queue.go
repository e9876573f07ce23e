package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"ruteo-sync-agent/internal/cache"
	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/repository"
	"ruteo-sync-agent/pkg/uid"
)

// dayFormat is the vendor-local calendar date used to bucket counters and
// shifts.
const dayFormat = "2006-01-02"

// QueueService owns record capture: it assigns the stable identity a record
// keeps for its whole life and persists it before returning. A sale that
// cannot be queued fails loudly; it is never silently dropped.
type QueueService struct {
	store    repository.Store
	counters cache.CounterStore
	deviceID string
}

// NewQueueService creates a queue service. Returns nil if store is nil
// (required dependency).
func NewQueueService(store repository.Store, counters cache.CounterStore, deviceID string) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{
		store:    store,
		counters: counters,
		deviceID: deviceID,
	}
}

// EnqueueSale validates and durably queues a sale, assigning its idempotency
// identity. The optimistic day counters are bumped immediately so the UI can
// show totals before the authority confirms anything.
func (s *QueueService) EnqueueSale(ctx context.Context, sale *model.PendingSale) (*model.PendingSale, error) {
	if err := sale.Validate(); err != nil {
		return nil, err
	}
	if sale.LocalID == "" {
		sale.LocalID = uid.New()
	}
	sale.DeviceID = s.deviceID
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	sale.AttemptCount = 0

	if err := s.store.EnqueueSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to queue sale: %w", err)
	}

	if s.counters != nil {
		day := sale.Timestamp.Format(dayFormat)
		if err := s.counters.AddSale(ctx, sale.VendorID, day, sale.Total); err != nil {
			// Counters are derived state; the queued sale is what matters.
			log.Printf("[QueueService] Counter update failed for %s: %v", sale.VendorID, err)
		}
	}

	log.Printf("[QueueService] Queued sale %s for vendor %s (client %s)", sale.LocalID, sale.VendorID, sale.ClientRef)
	return sale, nil
}

// EnqueueOrderAction validates and durably queues an order status change.
func (s *QueueService) EnqueueOrderAction(ctx context.Context, action *model.PendingAction) (*model.PendingAction, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if action.LocalID == "" {
		action.LocalID = uid.New()
	}
	action.DeviceID = s.deviceID
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	action.AttemptCount = 0

	if err := s.store.EnqueueAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to queue order action: %w", err)
	}

	log.Printf("[QueueService] Queued %s action %s for order %s", action.Kind, action.LocalID, action.OrderRef)
	return action, nil
}

// PendingCount returns the vendor's queued sales plus actions.
func (s *QueueService) PendingCount(ctx context.Context, vendorID string) (int, error) {
	return s.store.PendingCount(ctx, vendorID)
}

// ListPending returns the vendor's queued records for display.
func (s *QueueService) ListPending(ctx context.Context, vendorID string) ([]model.PendingSale, []model.PendingAction, error) {
	sales, err := s.store.ListPendingSales(ctx, vendorID)
	if err != nil {
		return nil, nil, err
	}
	actions, err := s.store.ListPendingActions(ctx, vendorID)
	if err != nil {
		return nil, nil, err
	}
	return sales, actions, nil
}

// DiscardSale removes a queued sale after an explicit user decision on a
// conflicted or rejected record.
func (s *QueueService) DiscardSale(ctx context.Context, localID string) error {
	log.Printf("[QueueService] Discarding sale %s by user decision", localID)
	return s.store.RemoveSale(ctx, localID)
}

// DayTotals returns the optimistic counters for a vendor day.
func (s *QueueService) DayTotals(ctx context.Context, vendorID, day string) (cache.DayTotals, error) {
	if s.counters == nil {
		return cache.DayTotals{}, nil
	}
	return s.counters.Totals(ctx, vendorID, day)
}
