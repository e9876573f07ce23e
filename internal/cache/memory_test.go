package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCountersAccumulatePerVendorDay(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounters()

	require.NoError(t, c.AddSale(ctx, "v1", "2026-08-29", 120))
	require.NoError(t, c.AddSale(ctx, "v1", "2026-08-29", 80.5))
	require.NoError(t, c.AddSale(ctx, "v1", "2026-08-30", 10))
	require.NoError(t, c.AddSale(ctx, "v2", "2026-08-29", 99))

	totals, err := c.Totals(ctx, "v1", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.SalesCount)
	assert.InDelta(t, 200.5, totals.SalesTotal, 0.001)

	other, err := c.Totals(ctx, "v2", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, 1, other.SalesCount)
}

func TestMemoryCountersResetClearsOnlyThatDay(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounters()

	require.NoError(t, c.AddSale(ctx, "v1", "2026-08-29", 50))
	require.NoError(t, c.AddSale(ctx, "v1", "2026-08-30", 75))
	require.NoError(t, c.Reset(ctx, "v1", "2026-08-29"))

	cleared, err := c.Totals(ctx, "v1", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, DayTotals{}, cleared)

	kept, err := c.Totals(ctx, "v1", "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, 1, kept.SalesCount)
}
