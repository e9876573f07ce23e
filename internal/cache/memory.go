package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCounters is the default in-process CounterStore.
type MemoryCounters struct {
	mu     sync.RWMutex
	totals map[string]DayTotals
}

// NewMemoryCounters creates an in-memory counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{totals: make(map[string]DayTotals)}
}

func counterKey(vendorID, day string) string {
	return fmt.Sprintf("%s:%s", vendorID, day)
}

// AddSale bumps the vendor's counters for the day.
func (c *MemoryCounters) AddSale(ctx context.Context, vendorID, day string, amount float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.totals[counterKey(vendorID, day)]
	t.SalesCount++
	t.SalesTotal += amount
	c.totals[counterKey(vendorID, day)] = t
	return nil
}

// Totals returns the vendor's counters for the day.
func (c *MemoryCounters) Totals(ctx context.Context, vendorID, day string) (DayTotals, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.totals[counterKey(vendorID, day)], nil
}

// Reset clears the vendor's counters for the day.
func (c *MemoryCounters) Reset(ctx context.Context, vendorID, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.totals, counterKey(vendorID, day))
	return nil
}

// Close is a no-op for the memory store.
func (c *MemoryCounters) Close() error {
	return nil
}

// Ensure MemoryCounters implements CounterStore
var _ CounterStore = (*MemoryCounters)(nil)
