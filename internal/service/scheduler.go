package service

import (
	"context"
	"log"
	"sync"
	"time"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/repository"
)

// Connectivity is the slice of the monitor the scheduler consumes:
// transitions as a channel plus the current state.
type Connectivity interface {
	Reachability
	Subscribe() <-chan bool
}

// SchedulerConfig holds configuration for the sync scheduler.
type SchedulerConfig struct {
	// Interval is the periodic sync cadence while reachable.
	// Default: 5 seconds
	Interval time.Duration

	// PassTimeout bounds one whole sync pass.
	// Default: 5 minutes
	PassTimeout time.Duration
}

// SyncScheduler drives the submitter: a fixed tick plus one immediate forced
// pass whenever connectivity returns. Overlap is impossible; the submitter's
// in-flight lock turns a concurrent pass into SkippedConcurrent.
type SyncScheduler struct {
	submitter *Submitter
	store     repository.QueueStore
	conn      Connectivity
	config    SchedulerConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewSyncScheduler creates a sync scheduler.
func NewSyncScheduler(submitter *Submitter, store repository.QueueStore, conn Connectivity, config SchedulerConfig) *SyncScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = 5 * time.Minute
	}
	return &SyncScheduler{
		submitter: submitter,
		store:     store,
		conn:      conn,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[SyncScheduler] Started - Interval: %v", s.config.Interval)
	go s.run()
}

// run is the main scheduling loop.
func (s *SyncScheduler) run() {
	transitions := s.conn.Subscribe()
	for {
		select {
		case <-s.ticker.C:
			s.runPass(false)
		case reachable := <-transitions:
			if reachable {
				log.Printf("[SyncScheduler] Connectivity restored, forcing a pass")
				s.runPass(true)
			}
		case <-s.stopCh:
			log.Printf("[SyncScheduler] Stopped")
			return
		}
	}
}

// runPass syncs every vendor that has queued work.
func (s *SyncScheduler) runPass(forced bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.PassTimeout)
	defer cancel()

	vendors, err := s.store.VendorsWithPending(ctx)
	if err != nil {
		log.Printf("[SyncScheduler] Failed to list vendors: %v", err)
		return
	}

	for _, vendorID := range vendors {
		report, err := s.submitter.SyncOnce(ctx, vendorID, forced)
		if err != nil {
			log.Printf("[SyncScheduler] Pass for %s failed: %v", vendorID, err)
			continue
		}
		if report.Status != model.SyncCompleted {
			log.Printf("[SyncScheduler] Pass for %s: %s", vendorID, report.Status)
		}
	}
}

// RunNow triggers an immediate forced pass for one vendor (pull to refresh).
func (s *SyncScheduler) RunNow(ctx context.Context, vendorID string) (*model.SyncReport, error) {
	return s.submitter.SyncOnce(ctx, vendorID, true)
}

// Stop stops the scheduler.
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
