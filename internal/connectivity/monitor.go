package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// Prober checks whether the remote authority is reachable right now.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor probes the authority on an interval and publishes reachability
// transitions. Rapid flapping is coalesced: a flip closer than the flap
// window to the previous one is ignored.
type Monitor struct {
	prober     Prober
	interval   time.Duration
	flapWindow time.Duration

	mu        sync.Mutex
	reachable bool
	lastFlip  time.Time
	subs      []chan bool

	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
}

// NewMonitor creates a monitor. The agent starts pessimistic: unreachable
// until the first successful probe.
func NewMonitor(prober Prober, interval, flapWindow time.Duration) *Monitor {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if flapWindow <= 0 {
		flapWindow = time.Second
	}
	return &Monitor{
		prober:     prober,
		interval:   interval,
		flapWindow: flapWindow,
		stopCh:     make(chan struct{}),
	}
}

// Start begins probing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()

	log.Printf("[Monitor] Started - probe interval: %v", m.interval)
	go m.run()
}

func (m *Monitor) run() {
	m.probe()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopCh:
			log.Printf("[Monitor] Stopped")
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	err := m.prober.Ping(ctx)
	m.Report(err == nil)
}

// Report records an observed reachability state and publishes the transition
// if it is a de-flapped change.
func (m *Monitor) Report(reachable bool) {
	m.mu.Lock()
	if reachable == m.reachable {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	if !m.lastFlip.IsZero() && now.Sub(m.lastFlip) < m.flapWindow {
		m.mu.Unlock()
		return
	}
	m.reachable = reachable
	m.lastFlip = now
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	log.Printf("[Monitor] Reachability changed: %v", reachable)
	for _, ch := range subs {
		select {
		case ch <- reachable:
		default:
			// Subscriber is behind; it will see the state via Reachable().
		}
	}
}

// Reachable returns the last de-flapped reachability state.
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Subscribe returns a channel of reachability transitions.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Stop halts probing.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		close(m.stopCh)
		m.isRunning = false
	})
}
