package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenThrottles(t *testing.T) {
	l := New(Config{RatePerHour: 3600, Burst: 2, DedupWindow: time.Hour, Cleanup: time.Minute})

	assert.True(t, l.Allow("u1", "email"))
	assert.True(t, l.Allow("u1", "email"))
	assert.False(t, l.Allow("u1", "email"))
}

func TestAllow_IsolatedPerUserAndChannel(t *testing.T) {
	l := New(Config{RatePerHour: 3600, Burst: 1, DedupWindow: time.Hour, Cleanup: time.Minute})

	assert.True(t, l.Allow("u1", "email"))
	assert.True(t, l.Allow("u1", "push"))
	assert.True(t, l.Allow("u2", "email"))
	assert.False(t, l.Allow("u1", "email"))
}

func TestAlreadySent_BlocksWithinWindowThenAllowsAfter(t *testing.T) {
	l := New(Config{RatePerHour: 100, Burst: 10, DedupWindow: 50 * time.Millisecond, Cleanup: time.Minute})

	assert.False(t, l.AlreadySent("a1", "email"))
	assert.True(t, l.AlreadySent("a1", "email"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, l.AlreadySent("a1", "email"))
}

func TestAlreadySent_IsolatedPerAlertAndChannel(t *testing.T) {
	l := New(Config{RatePerHour: 100, Burst: 10, DedupWindow: time.Hour, Cleanup: time.Minute})

	assert.False(t, l.AlreadySent("a1", "email"))
	assert.False(t, l.AlreadySent("a1", "push"))
	assert.False(t, l.AlreadySent("a2", "email"))
}
