package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/pkg/uid"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func testSale(vendorID, localID string) *model.PendingSale {
	return &model.PendingSale{
		LocalID:   localID,
		DeviceID:  "dev-1",
		VendorID:  vendorID,
		ClientRef: "client-9",
		LineItems: []model.LineItem{
			{Product: "water-20l", Quantity: 2, UnitPrice: 35},
		},
		Total:         70,
		PaymentMethod: "cash",
		Timestamp:     time.Now().UTC(),
	}
}

func testAction(vendorID, localID string) *model.PendingAction {
	return &model.PendingAction{
		LocalID:   localID,
		DeviceID:  "dev-1",
		VendorID:  vendorID,
		Kind:      model.ActionNotDelivered,
		OrderRef:  "order-42",
		Reason:    "client absent",
		Timestamp: time.Now().UTC(),
	}
}

func TestSQLiteStoreQueueInsertionOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-2")))
	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-3")))

	sales, err := store.ListPendingSales(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.Equal(t, "s-1", sales[0].LocalID)
	assert.Equal(t, "s-2", sales[1].LocalID)
	assert.Equal(t, "s-3", sales[2].LocalID)
}

func TestSQLiteStorePendingCountSpansBothQueues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-2")))
	require.NoError(t, store.EnqueueAction(ctx, testAction("v1", "a-1")))
	require.NoError(t, store.EnqueueSale(ctx, testSale("v2", "s-other")))

	count, err := store.PendingCount(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.PendingCount(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStoreRemoveDequeues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.EnqueueAction(ctx, testAction("v1", "a-1")))

	require.NoError(t, store.RemoveSale(ctx, "s-1"))
	require.NoError(t, store.RemoveAction(ctx, "a-1"))

	count, err := store.PendingCount(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteStoreMarkAttemptIncrements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.MarkSaleAttempt(ctx, "s-1"))
	require.NoError(t, store.MarkSaleAttempt(ctx, "s-1"))

	sales, err := store.ListPendingSales(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 2, sales[0].AttemptCount)
}

func TestSQLiteStoreVendorsWithPending(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.EnqueueAction(ctx, testAction("v2", "a-1")))
	require.NoError(t, store.EnqueueAction(ctx, testAction("v1", "a-2")))

	vendors, err := store.VendorsWithPending(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, vendors)
}

func TestSQLiteStoreQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.EnqueueSale(ctx, testSale("v1", "s-1")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	sales, err := reopened.ListPendingSales(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "s-1", sales[0].LocalID)
	assert.Equal(t, "client-9", sales[0].ClientRef)
}

func TestSQLiteStoreSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	snap, err := store.Snapshot(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.SaveSnapshot(ctx, &model.ShiftSnapshot{
		VendorID: "v1",
		Day:      "2026-08-29",
		OpenedAt: time.Now().UTC(),
		Status:   model.ShiftOpen,
	}))

	snap, err = store.Snapshot(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-08-29", snap.Day)
	assert.True(t, snap.IsOpen())
	assert.False(t, snap.WrittenAt.IsZero())

	// Upsert replaces, never duplicates
	require.NoError(t, store.SaveSnapshot(ctx, &model.ShiftSnapshot{
		VendorID: "v1",
		Day:      "2026-08-29",
		OpenedAt: time.Now().UTC(),
		Status:   model.ShiftClosed,
	}))
	snap, err = store.Snapshot(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.False(t, snap.IsOpen())

	require.NoError(t, store.ClearSnapshot(ctx, "v1"))
	snap, err = store.Snapshot(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLiteStoreDeviceIDStableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	first, err := store.DeviceID(ctx)
	require.NoError(t, err)
	assert.True(t, uid.IsValid(first))

	second, err := store.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	third, err := reopened.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}
