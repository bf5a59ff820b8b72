package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_AppendFailsOnceClosed(t *testing.T) {
	now := time.Now()
	b := NewBatch("b1", "u1", "email", BatchHourly, now.Add(time.Hour), now)
	require.NoError(t, b.Append())
	b.Start()
	assert.ErrorIs(t, b.Append(), ErrBatchNotOpen)
}

func TestBatch_DueOnlyAfterScheduledFor(t *testing.T) {
	now := time.Now()
	b := NewBatch("b1", "u1", "email", BatchHourly, now.Add(time.Hour), now)
	assert.False(t, b.Due(now))
	assert.True(t, b.Due(now.Add(2*time.Hour)))
}

func TestNextHourBoundary_RoundsUpToTopOfHour(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 22, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 7, 30, 15, 0, 0, 0, time.UTC), NextHourBoundary(now))
}

func TestNextDailySummary_RollsToTomorrowIfPast(t *testing.T) {
	now := time.Date(2026, 7, 30, 20, 0, 0, 0, time.UTC)
	got := NextDailySummary(now, 9)
	assert.Equal(t, time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), got)
}

func TestNextDailySummary_SameDayIfStillAhead(t *testing.T) {
	now := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)
	got := NextDailySummary(now, 9)
	assert.Equal(t, time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC), got)
}
