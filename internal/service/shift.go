package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ruteo-sync-agent/internal/cache"
	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/remote"
	"ruteo-sync-agent/internal/repository"
)

// ShiftManagerConfig holds the shift state machine settings.
type ShiftManagerConfig struct {
	// StaleWindow bounds how long an offline snapshot is trusted.
	StaleWindow time.Duration

	// VerifyRetries / VerifyBackoff bound the remote check in Verify.
	VerifyRetries int
	VerifyBackoff time.Duration
}

// ShiftManager governs whether the vendor may record transactions today.
// It consults the authority when reachable and falls back to the persisted
// snapshot when not, within the stale window.
type ShiftManager struct {
	store     repository.Store
	authority Authority
	counters  cache.CounterStore
	cfg       ShiftManagerConfig
}

// NewShiftManager creates the shift state machine.
func NewShiftManager(store repository.Store, authority Authority, counters cache.CounterStore, cfg ShiftManagerConfig) *ShiftManager {
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = 72 * time.Hour
	}
	if cfg.VerifyRetries <= 0 {
		cfg.VerifyRetries = 3
	}
	if cfg.VerifyBackoff <= 0 {
		cfg.VerifyBackoff = 500 * time.Millisecond
	}
	return &ShiftManager{
		store:     store,
		authority: authority,
		counters:  counters,
		cfg:       cfg,
	}
}

// Verify returns the vendor's current shift state. It tries the authority a
// bounded number of times; on pure transport exhaustion it falls back to the
// persisted snapshot, but only while that snapshot is inside the stale
// window. A stale snapshot is discarded and CLOSED is reported, forcing a
// human decision before any offline work continues.
func (m *ShiftManager) Verify(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.VerifyRetries; attempt++ {
		snap, err := m.authority.VerifyShift(ctx, vendorID)
		if err == nil {
			if saveErr := m.store.SaveSnapshot(ctx, snap); saveErr != nil {
				return nil, fmt.Errorf("failed to persist shift snapshot: %w", saveErr)
			}
			return snap, nil
		}
		var reqErr *remote.RequestError
		if errors.As(err, &reqErr) {
			// The authority answered; this is not a transport failure.
			return nil, err
		}
		lastErr = err
		if attempt < m.cfg.VerifyRetries-1 {
			if waitErr := sleepWithContext(ctx, m.cfg.VerifyBackoff); waitErr != nil {
				return nil, waitErr
			}
		}
	}

	log.Printf("[ShiftManager] Verify for %s unreachable after %d attempts: %v", vendorID, m.cfg.VerifyRetries, lastErr)

	snap, err := m.store.Snapshot(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if snap != nil && snap.IsOpen() && !snap.StaleAt(now, m.cfg.StaleWindow) {
		log.Printf("[ShiftManager] Continuing offline on snapshot from %s (day %s)", snap.WrittenAt.Format(time.RFC3339), snap.Day)
		return snap, nil
	}
	if snap != nil && snap.StaleAt(now, m.cfg.StaleWindow) {
		log.Printf("[ShiftManager] Discarding stale snapshot for %s (written %s)", vendorID, snap.WrittenAt.Format(time.RFC3339))
		if clearErr := m.store.ClearSnapshot(ctx, vendorID); clearErr != nil {
			return nil, clearErr
		}
	}
	return &model.ShiftSnapshot{VendorID: vendorID, Status: model.ShiftClosed}, nil
}

// Open opens the vendor's shift for the day. If the authority reports the
// day's shift was already closed, ErrShiftAlreadyClosed is returned and the
// caller must decide between abandoning and a forced reopen. On transport
// failure the shift opens optimistically offline: revenue capture cannot
// wait for connectivity.
func (m *ShiftManager) Open(ctx context.Context, vendorID, day string, forced bool) (*model.ShiftSnapshot, error) {
	snap, err := m.authority.OpenShift(ctx, vendorID, day, forced)
	if err == nil {
		if saveErr := m.store.SaveSnapshot(ctx, snap); saveErr != nil {
			return nil, fmt.Errorf("failed to persist shift snapshot: %w", saveErr)
		}
		if forced {
			log.Printf("[ShiftManager] Forced reopen of shift for %s day %s", vendorID, day)
		} else {
			log.Printf("[ShiftManager] Opened shift for %s day %s", vendorID, day)
		}
		return snap, nil
	}

	if errors.Is(err, remote.ErrShiftAlreadyClosed) {
		return nil, err
	}
	var reqErr *remote.RequestError
	if errors.As(err, &reqErr) {
		return nil, err
	}

	// Transport failure: open optimistically offline.
	snap = &model.ShiftSnapshot{
		VendorID: vendorID,
		Day:      day,
		OpenedAt: time.Now().UTC(),
		Status:   model.ShiftOpen,
	}
	if saveErr := m.store.SaveSnapshot(ctx, snap); saveErr != nil {
		return nil, fmt.Errorf("failed to persist offline shift snapshot: %w", saveErr)
	}
	log.Printf("[ShiftManager] Authority unreachable, opened shift offline for %s day %s", vendorID, day)
	return snap, nil
}

// Close closes the vendor's shift. Precondition: the pending queue must be
// empty; closure triggers authoritative reconciliation on the server, which
// must see every transaction first. The check happens before any network
// call.
func (m *ShiftManager) Close(ctx context.Context, vendorID, day string) (*model.CloseSummary, error) {
	pending, err := m.store.PendingCount(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending work: %w", err)
	}
	if pending > 0 {
		return nil, &PendingWorkError{Count: pending}
	}

	summary := &model.CloseSummary{VendorID: vendorID, Day: day}
	if m.counters != nil {
		totals, err := m.counters.Totals(ctx, vendorID, day)
		if err != nil {
			log.Printf("[ShiftManager] Failed to read day totals for %s: %v", vendorID, err)
		} else {
			summary.SalesCount = totals.SalesCount
			summary.SalesTotal = totals.SalesTotal
		}
	}

	result, err := m.authority.CloseShift(ctx, vendorID, day, summary)
	if err != nil {
		return nil, err
	}

	if err := m.store.ClearSnapshot(ctx, vendorID); err != nil {
		return nil, fmt.Errorf("failed to clear shift snapshot: %w", err)
	}
	if m.counters != nil {
		if err := m.counters.Reset(ctx, vendorID, day); err != nil {
			log.Printf("[ShiftManager] Failed to reset day counters for %s: %v", vendorID, err)
		}
	}
	log.Printf("[ShiftManager] Closed shift for %s day %s (%d sales)", vendorID, day, result.SalesCount)
	return result, nil
}

// NoteRemoteClosure records that the authority considers the vendor's shift
// closed, discovered via a submission conflict. The local snapshot flips to
// CLOSED so the UI can offer the forced-reopen decision; queued records stay
// put.
func (m *ShiftManager) NoteRemoteClosure(ctx context.Context, vendorID string) {
	snap, err := m.store.Snapshot(ctx, vendorID)
	if err != nil || snap == nil || !snap.IsOpen() {
		return
	}
	snap.Status = model.ShiftClosed
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("[ShiftManager] Failed to record remote closure for %s: %v", vendorID, err)
		return
	}
	log.Printf("[ShiftManager] Authority reports shift closed for %s; local snapshot updated", vendorID)
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
