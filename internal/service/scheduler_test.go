package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruteo-sync-agent/internal/model"
)

// fakeConnectivity feeds scripted transitions to the scheduler.
type fakeConnectivity struct {
	reachable   bool
	transitions chan bool
}

func (f *fakeConnectivity) Reachable() bool        { return f.reachable }
func (f *fakeConnectivity) Subscribe() <-chan bool { return f.transitions }

func TestSchedulerForcesPassOnReconnect(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}

	synced := make(chan string, 1)
	authority := &authorityStub{
		createSale: func(sale *model.PendingSale) (model.Outcome, error) {
			synced <- sale.LocalID
			return model.OutcomeCreated, nil
		},
	}
	conn := &fakeConnectivity{reachable: false, transitions: make(chan bool, 1)}

	sub := NewSubmitter(store, authority, conn, RetryPolicy{})
	// A long interval keeps the ticker out of the test; only the transition
	// can trigger the pass.
	sched := NewSyncScheduler(sub, store, conn, SchedulerConfig{Interval: time.Hour})
	sched.Start()
	defer sched.Stop()

	conn.reachable = true
	conn.transitions <- true

	select {
	case localID := <-synced:
		assert.Equal(t, "s-1", localID)
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect transition did not trigger a sync pass")
	}
}

func TestSchedulerRunNowForcesImmediatePass(t *testing.T) {
	store := newMemStore()
	store.sales = []model.PendingSale{queuedSale("v1", "s-1", 0)}
	authority := &authorityStub{}
	conn := &fakeConnectivity{reachable: false, transitions: make(chan bool)}

	sub := NewSubmitter(store, authority, conn, RetryPolicy{})
	sched := NewSyncScheduler(sub, store, conn, SchedulerConfig{Interval: time.Hour})

	// Pull to refresh works even while the monitor still says offline.
	report, err := sched.RunNow(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncCompleted, report.Status)
	assert.Equal(t, 1, report.Succeeded)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	store := newMemStore()
	conn := &fakeConnectivity{transitions: make(chan bool)}
	sub := NewSubmitter(store, &authorityStub{}, conn, RetryPolicy{})
	sched := NewSyncScheduler(sub, store, conn, SchedulerConfig{Interval: time.Hour})

	sched.Start()
	sched.Stop()
	sched.Stop()
}
