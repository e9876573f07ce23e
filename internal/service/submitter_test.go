package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/remote"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu        sync.Mutex
	sales     []model.PendingSale
	actions   []model.PendingAction
	snapshots map[string]*model.ShiftSnapshot
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string]*model.ShiftSnapshot)}
}

func (m *memStore) EnqueueSale(_ context.Context, sale *model.PendingSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, *sale)
	return nil
}

func (m *memStore) EnqueueAction(_ context.Context, action *model.PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, *action)
	return nil
}

func (m *memStore) ListPendingSales(_ context.Context, vendorID string) ([]model.PendingSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PendingSale
	for _, s := range m.sales {
		if s.VendorID == vendorID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListPendingActions(_ context.Context, vendorID string) ([]model.PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PendingAction
	for _, a := range m.actions {
		if a.VendorID == vendorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) RemoveSale(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sales {
		if s.LocalID == localID {
			m.sales = append(m.sales[:i], m.sales[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) RemoveAction(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.actions {
		if a.LocalID == localID {
			m.actions = append(m.actions[:i], m.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) MarkSaleAttempt(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sales {
		if m.sales[i].LocalID == localID {
			m.sales[i].AttemptCount++
		}
	}
	return nil
}

func (m *memStore) MarkActionAttempt(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].LocalID == localID {
			m.actions[i].AttemptCount++
		}
	}
	return nil
}

func (m *memStore) PendingCount(_ context.Context, vendorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sales {
		if s.VendorID == vendorID {
			count++
		}
	}
	for _, a := range m.actions {
		if a.VendorID == vendorID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) VendorsWithPending(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var vendors []string
	for _, s := range m.sales {
		if !seen[s.VendorID] {
			seen[s.VendorID] = true
			vendors = append(vendors, s.VendorID)
		}
	}
	for _, a := range m.actions {
		if !seen[a.VendorID] {
			seen[a.VendorID] = true
			vendors = append(vendors, a.VendorID)
		}
	}
	return vendors, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap *model.ShiftSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snap
	if copied.WrittenAt.IsZero() {
		copied.WrittenAt = time.Now().UTC()
	}
	m.snapshots[snap.VendorID] = &copied
	return nil
}

func (m *memStore) Snapshot(_ context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[vendorID]
	if !ok {
		return nil, nil
	}
	copied := *snap
	return &copied, nil
}

func (m *memStore) ClearSnapshot(_ context.Context, vendorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, vendorID)
	return nil
}

func (m *memStore) DeviceID(_ context.Context) (string, error) { return "dev-test", nil }

func (m *memStore) Close() error { return nil }

// authorityStub scripts the remote authority per test via function fields;
// unset fields default to success.
type authorityStub struct {
	mu          sync.Mutex
	createSale  func(sale *model.PendingSale) (model.Outcome, error)
	updateOrder func(action *model.PendingAction) (model.Outcome, error)
	verifyShift func(vendorID string) (*model.ShiftSnapshot, error)
	openShift   func(vendorID, day string, forced bool) (*model.ShiftSnapshot, error)
	closeShift  func(vendorID, day string, summary *model.CloseSummary) (*model.CloseSummary, error)

	createCalls int
	closeCalls  int
}

func (a *authorityStub) CreateSale(_ context.Context, sale *model.PendingSale) (model.Outcome, error) {
	a.mu.Lock()
	a.createCalls++
	fn := a.createSale
	a.mu.Unlock()
	if fn == nil {
		return model.OutcomeCreated, nil
	}
	return fn(sale)
}

func (a *authorityStub) UpdateOrderStatus(_ context.Context, action *model.PendingAction) (model.Outcome, error) {
	if a.updateOrder == nil {
		return model.OutcomeCreated, nil
	}
	return a.updateOrder(action)
}

func (a *authorityStub) VerifyShift(_ context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	if a.verifyShift == nil {
		return &model.ShiftSnapshot{VendorID: vendorID, Status: model.ShiftClosed}, nil
	}
	return a.verifyShift(vendorID)
}

func (a *authorityStub) OpenShift(_ context.Context, vendorID, day string, forced bool) (*model.ShiftSnapshot, error) {
	if a.openShift == nil {
		return &model.ShiftSnapshot{VendorID: vendorID, Day: day, Status: model.ShiftOpen}, nil
	}
	return a.openShift(vendorID, day, forced)
}

func (a *authorityStub) CloseShift(_ context.Context, vendorID, day string, summary *model.CloseSummary) (*model.CloseSummary, error) {
	a.mu.Lock()
	a.closeCalls++
	fn := a.closeShift
	a.mu.Unlock()
	if fn == nil {
		return &model.CloseSummary{VendorID: vendorID, Day: day}, nil
	}
	return fn(vendorID, day, summary)
}

type connStub struct{ reachable bool }

func (c *connStub) Reachable() bool { return c.reachable }

type sinkStub struct {
	mu      sync.Mutex
	vendors []string
}

func (s *sinkStub) NoteRemoteClosure(_ context.Context, vendorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors = append(s.vendors, vendorID)
}

func queuedSale(vendorID, localID string, attempts int) model.PendingSale {
	return model.PendingSale{
		LocalID:       localID,
		DeviceID:      "dev-test",
		VendorID:      vendorID,
		ClientRef:     "client-1",
		LineItems:     []model.LineItem{{Product: "water-20l", Quantity: 1, UnitPrice: 35}},
		Total:         35,
		PaymentMethod: "cash",
		AttemptCount:  attempts,
	}
}

func queuedAction(vendorID, localID string) model.PendingAction {
	return model.PendingAction{
		LocalID:       localID,
		DeviceID:      "dev-test",
		VendorID:      vendorID,
		Kind:          model.ActionDelivered,
		OrderRef:      "order-7",
		PaymentMethod: "cash",
	}
}

func TestSyncOnceDrainsQueueInOrder(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0), queuedSale("v1", "s-2", 0)}
	store.actions = []model.PendingAction{queuedAction("v1", "a-1")}

	authority := &authorityStub{}
	var submitted []string
	authority.createSale = func(sale *model.PendingSale) (model.Outcome, error) {
		submitted = append(submitted, sale.LocalID)
		return model.OutcomeCreated, nil
	}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, model.SyncCompleted, report.Status)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.StillPending)
	assert.Equal(t, []string{"s-1", "s-2"}, submitted)

	count, _ := store.PendingCount(context.Background(), "v1")
	assert.Equal(t, 0, count)
}

func TestSyncOnceAlreadyAppliedDequeues(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 1)}

	authority := &authorityStub{
		createSale: func(*model.PendingSale) (model.Outcome, error) {
			return model.OutcomeAlreadyApplied, nil
		},
	}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, store.sales)
}

func TestSyncOnceTransportFailureKeepsRecordAndContinues(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{
		queuedSale("v1", "s-1", 0),
		queuedSale("v1", "s-2", 0),
		queuedSale("v1", "s-3", 0),
	}

	authority := &authorityStub{
		createSale: func(sale *model.PendingSale) (model.Outcome, error) {
			if sale.LocalID == "s-2" {
				return model.OutcomeTransportFailed, context.DeadlineExceeded
			}
			return model.OutcomeCreated, nil
		},
	}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.StillPending)
	require.Len(t, store.sales, 1)
	assert.Equal(t, "s-2", store.sales[0].LocalID)
	assert.Equal(t, 1, store.sales[0].AttemptCount)
}

func TestSyncOnceRejectedDequeuedAndSurfaced(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}

	authority := &authorityStub{
		createSale: func(*model.PendingSale) (model.Outcome, error) {
			return model.OutcomeRejected, &remote.RequestError{
				StatusCode: 422, Code: "VALIDATION_ERROR", Message: "unknown product",
			}
		},
	}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Succeeded)
	assert.Empty(t, store.sales)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "s-1", report.Rejected[0].LocalID)
	assert.Equal(t, "sale", report.Rejected[0].Kind)
	assert.Contains(t, report.Rejected[0].Reason, "unknown product")
}

func TestSyncOnceConflictKeepsRecordAndRoutesClosure(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}

	authority := &authorityStub{
		createSale: func(*model.PendingSale) (model.Outcome, error) {
			return model.OutcomeConflicted, &remote.RequestError{
				StatusCode: 409, Code: "ALREADY_CLOSED", Message: "shift closed at 18:02",
			}
		},
	}
	sink := &sinkStub{}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})
	sub.SetShiftConflictSink(sink)
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	// The vendor believes the sale succeeded; discarding is a human decision.
	require.Len(t, store.sales, 1)
	assert.Equal(t, 1, store.sales[0].AttemptCount)
	require.Len(t, report.Conflicted, 1)
	assert.Equal(t, 1, report.StillPending)
	assert.Equal(t, []string{"v1"}, sink.vendors)
}

func TestSyncOnceSkipsWhenOffline(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}
	authority := &authorityStub{}

	sub := NewSubmitter(store, authority, &connStub{reachable: false}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, model.SyncSkippedOffline, report.Status)
	assert.Equal(t, 0, authority.createCalls)
	require.Len(t, store.sales, 1)
}

func TestSyncOnceForcedBypassesOfflineCheck(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}
	authority := &authorityStub{}

	sub := NewSubmitter(store, authority, &connStub{reachable: false}, RetryPolicy{})
	report, err := sub.SyncOnce(context.Background(), "v1", true)
	require.NoError(t, err)

	assert.Equal(t, model.SyncCompleted, report.Status)
	assert.Equal(t, 1, report.Succeeded)
}

func TestSyncOnceConcurrentPassSkipped(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}

	entered := make(chan struct{})
	release := make(chan struct{})
	authority := &authorityStub{
		createSale: func(*model.PendingSale) (model.Outcome, error) {
			close(entered)
			<-release
			return model.OutcomeCreated, nil
		},
	}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sub.SyncOnce(context.Background(), "v1", false)
	}()
	<-entered

	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSkippedConcurrent, report.Status)

	close(release)
	<-done
}

func TestSyncOnceStallsExhaustedRecords(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{
		queuedSale("v1", "s-exhausted", 2),
		queuedSale("v1", "s-fresh", 0),
	}
	authority := &authorityStub{}

	sub := NewSubmitter(store, authority, &connStub{reachable: true}, RetryPolicy{MaxAttempts: 2})
	report, err := sub.SyncOnce(context.Background(), "v1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Stalled)
	assert.Equal(t, 1, report.StillPending)
	// The exhausted record is stalled, not dropped.
	require.Len(t, store.sales, 1)
	assert.Equal(t, "s-exhausted", store.sales[0].LocalID)
	assert.Equal(t, 1, authority.createCalls)
}

func TestRetryPolicyZeroMeansRetryForever(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 0}
	assert.False(t, policy.Exhausted(0))
	assert.False(t, policy.Exhausted(10000))

	bounded := RetryPolicy{MaxAttempts: 3}
	assert.False(t, bounded.Exhausted(2))
	assert.True(t, bounded.Exhausted(3))
}
