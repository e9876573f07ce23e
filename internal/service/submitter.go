package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/remote"
	"ruteo-sync-agent/internal/repository"
)

// Authority is the remote sales authority as the services consume it.
type Authority interface {
	CreateSale(ctx context.Context, sale *model.PendingSale) (model.Outcome, error)
	UpdateOrderStatus(ctx context.Context, action *model.PendingAction) (model.Outcome, error)
	VerifyShift(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error)
	OpenShift(ctx context.Context, vendorID, day string, forced bool) (*model.ShiftSnapshot, error)
	CloseShift(ctx context.Context, vendorID, day string, summary *model.CloseSummary) (*model.CloseSummary, error)
}

// Reachability is the slice of the connectivity monitor the submitter needs.
type Reachability interface {
	Reachable() bool
}

// RetryPolicy bounds per-record retries. MaxAttempts 0 means retry forever:
// a transport-failed record is never abandoned, only reported as stalled once
// it passes the bound.
type RetryPolicy struct {
	MaxAttempts int
}

// Exhausted reports whether a record has used up its attempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// ShiftConflictSink receives shift-level conflicts discovered during
// submission, so the shift manager can reconcile its snapshot.
type ShiftConflictSink interface {
	NoteRemoteClosure(ctx context.Context, vendorID string)
}

// Submitter drains the pending queues against the authority. At most one
// pass runs at a time; the periodic tick, a reconnect trigger and a
// user-initiated refresh all funnel through the same lock.
type Submitter struct {
	store     repository.QueueStore
	authority Authority
	conn      Reachability
	policy    RetryPolicy
	shifts    ShiftConflictSink

	// inFlight serializes sync passes. TryLock on entry, released on every
	// exit path; concurrent callers get SkippedConcurrent instead of waiting.
	inFlight sync.Mutex
}

// NewSubmitter creates a submission engine.
func NewSubmitter(store repository.QueueStore, authority Authority, conn Reachability, policy RetryPolicy) *Submitter {
	return &Submitter{
		store:     store,
		authority: authority,
		conn:      conn,
		policy:    policy,
	}
}

// SetShiftConflictSink routes shift-closure conflicts to the shift manager.
func (s *Submitter) SetShiftConflictSink(sink ShiftConflictSink) {
	s.shifts = sink
}

// SyncOnce runs one submission pass for a vendor. Records are submitted
// sequentially in queue order; a transport failure leaves its record queued
// and moves on, so one stuck record cannot block the rest of the pass.
func (s *Submitter) SyncOnce(ctx context.Context, vendorID string, forced bool) (*model.SyncReport, error) {
	if !s.inFlight.TryLock() {
		return &model.SyncReport{Status: model.SyncSkippedConcurrent}, nil
	}
	defer s.inFlight.Unlock()

	if !forced && !s.conn.Reachable() {
		return &model.SyncReport{Status: model.SyncSkippedOffline}, nil
	}

	report := &model.SyncReport{Status: model.SyncCompleted}

	sales, err := s.store.ListPendingSales(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sales: %w", err)
	}
	for i := range sales {
		if ctx.Err() != nil {
			report.StillPending += len(sales) - i
			return report, ctx.Err()
		}
		s.submitSale(ctx, &sales[i], report)
	}

	actions, err := s.store.ListPendingActions(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	for i := range actions {
		if ctx.Err() != nil {
			report.StillPending += len(actions) - i
			return report, ctx.Err()
		}
		s.submitAction(ctx, &actions[i], report)
	}

	if report.Succeeded > 0 || report.StillPending > 0 {
		log.Printf("[Submitter] Pass for %s: %d confirmed, %d still pending, %d stalled",
			vendorID, report.Succeeded, report.StillPending, report.Stalled)
	}
	return report, nil
}

func (s *Submitter) submitSale(ctx context.Context, sale *model.PendingSale, report *model.SyncReport) {
	if s.policy.Exhausted(sale.AttemptCount) {
		report.Stalled++
		report.StillPending++
		return
	}

	outcome, err := s.authority.CreateSale(ctx, sale)
	switch outcome {
	case model.OutcomeCreated, model.OutcomeAlreadyApplied:
		// Removal only after a definitive response, never optimistically.
		if rmErr := s.store.RemoveSale(ctx, sale.LocalID); rmErr != nil {
			log.Printf("[Submitter] Failed to dequeue confirmed sale %s: %v", sale.LocalID, rmErr)
			report.StillPending++
			return
		}
		report.Succeeded++
		log.Printf("[Submitter] Sale %s %s", sale.LocalID, outcome)

	case model.OutcomeRejected:
		// Retrying a validation failure can never succeed. Dequeue and
		// surface it so the vendor can correct and recapture.
		if rmErr := s.store.RemoveSale(ctx, sale.LocalID); rmErr != nil {
			log.Printf("[Submitter] Failed to dequeue rejected sale %s: %v", sale.LocalID, rmErr)
		}
		report.Rejected = append(report.Rejected, model.RecordFailure{
			LocalID: sale.LocalID,
			Kind:    "sale",
			Ref:     sale.ClientRef,
			Reason:  errText(err),
		})
		log.Printf("[Submitter] Sale %s rejected: %v", sale.LocalID, err)

	case model.OutcomeConflicted:
		// A conflicted sale stays queued: the vendor believes it succeeded,
		// so discarding is a human decision, not ours.
		s.markSaleAttempt(ctx, sale.LocalID)
		report.Conflicted = append(report.Conflicted, model.RecordFailure{
			LocalID: sale.LocalID,
			Kind:    "sale",
			Ref:     sale.ClientRef,
			Reason:  errText(err),
		})
		report.StillPending++
		s.routeShiftConflict(ctx, sale.VendorID, err)
		log.Printf("[Submitter] Sale %s conflicted: %v", sale.LocalID, err)

	default: // OutcomeTransportFailed
		s.markSaleAttempt(ctx, sale.LocalID)
		report.StillPending++
	}
}

func (s *Submitter) submitAction(ctx context.Context, action *model.PendingAction, report *model.SyncReport) {
	if s.policy.Exhausted(action.AttemptCount) {
		report.Stalled++
		report.StillPending++
		return
	}

	outcome, err := s.authority.UpdateOrderStatus(ctx, action)
	switch outcome {
	case model.OutcomeCreated, model.OutcomeAlreadyApplied:
		if rmErr := s.store.RemoveAction(ctx, action.LocalID); rmErr != nil {
			log.Printf("[Submitter] Failed to dequeue confirmed action %s: %v", action.LocalID, rmErr)
			report.StillPending++
			return
		}
		report.Succeeded++
		log.Printf("[Submitter] Action %s (%s) %s", action.LocalID, action.Kind, outcome)

	case model.OutcomeRejected:
		if rmErr := s.store.RemoveAction(ctx, action.LocalID); rmErr != nil {
			log.Printf("[Submitter] Failed to dequeue rejected action %s: %v", action.LocalID, rmErr)
		}
		report.Rejected = append(report.Rejected, model.RecordFailure{
			LocalID: action.LocalID,
			Kind:    "action",
			Ref:     action.OrderRef,
			Reason:  errText(err),
		})
		log.Printf("[Submitter] Action %s rejected: %v", action.LocalID, err)

	case model.OutcomeConflicted:
		s.markActionAttempt(ctx, action.LocalID)
		report.Conflicted = append(report.Conflicted, model.RecordFailure{
			LocalID: action.LocalID,
			Kind:    "action",
			Ref:     action.OrderRef,
			Reason:  errText(err),
		})
		report.StillPending++
		s.routeShiftConflict(ctx, action.VendorID, err)
		log.Printf("[Submitter] Action %s conflicted: %v", action.LocalID, err)

	default: // OutcomeTransportFailed
		s.markActionAttempt(ctx, action.LocalID)
		report.StillPending++
	}
}

// routeShiftConflict forwards shift-closure conflicts to the shift manager.
func (s *Submitter) routeShiftConflict(ctx context.Context, vendorID string, err error) {
	if s.shifts == nil {
		return
	}
	var reqErr *remote.RequestError
	if errors.As(err, &reqErr) && reqErr.Code == "ALREADY_CLOSED" {
		s.shifts.NoteRemoteClosure(ctx, vendorID)
	}
}

func (s *Submitter) markSaleAttempt(ctx context.Context, localID string) {
	if err := s.store.MarkSaleAttempt(ctx, localID); err != nil {
		log.Printf("[Submitter] Failed to mark attempt on sale %s: %v", localID, err)
	}
}

func (s *Submitter) markActionAttempt(ctx context.Context, localID string) {
	if err := s.store.MarkActionAttempt(ctx, localID); err != nil {
		log.Printf("[Submitter] Failed to mark attempt on action %s: %v", localID, err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
