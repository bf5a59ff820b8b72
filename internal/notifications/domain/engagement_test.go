package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUserAgent(t *testing.T) {
	cases := []struct {
		name         string
		userAgent    string
		wantDevice   string
		wantPlatform string
	}{
		{"empty", "", "", ""},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "mobile", "ios"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Mobile/15E148", "mobile", "ios"},
		{"android", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile", "mobile", "android"},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14; Tab) Tablet", "tablet", "android"},
		{"windows desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "desktop", "windows"},
		{"macos desktop", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", "desktop", "macos"},
		{"linux desktop", "Mozilla/5.0 (X11; Linux x86_64)", "desktop", "linux"},
		{"unknown platform", "SomeBot/1.0", "desktop", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device, platform := ClassifyUserAgent(tc.userAgent)
			assert.Equal(t, tc.wantDevice, device)
			assert.Equal(t, tc.wantPlatform, platform)
		})
	}
}

func TestNewEngagementEvent_ClassifiesFromUserAgent(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	event := NewEngagementEvent("e1", "u1", "d1", EngagementOpened,
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile", now)

	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "d1", event.DeliveryID)
	assert.Equal(t, EngagementOpened, event.Type)
	assert.Equal(t, "mobile", event.DeviceType)
	assert.Equal(t, "android", event.Platform)
	assert.Equal(t, now, event.Timestamp)
}

func TestRecompute_ComputesPerChannelRates(t *testing.T) {
	samples := []DeliverySample{
		{Channel: "email", Opened: true, Clicked: true, HasEngagement: true, EngagedAt: time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC), BatchType: BatchHourly},
		{Channel: "email", Opened: false},
		{Channel: "push", Opened: true, HasEngagement: true, EngagedAt: time.Date(2026, 7, 27, 9, 30, 0, 0, time.UTC), BatchType: BatchImmediate},
	}

	m := Recompute("u1", samples, time.Now())

	assert.Equal(t, 3, m.TotalNotifications)
	assert.InDelta(t, 2.0/3.0, m.OpenRate, 1e-9)
	assert.InDelta(t, 0.5, m.ByChannel["email"].OpenRate, 1e-9)
	assert.Equal(t, 1.0, m.ByChannel["push"].OpenRate)
}

func TestRecompute_RanksChannelsByClickThenOpenRate(t *testing.T) {
	samples := []DeliverySample{
		{Channel: "email", Opened: true, Clicked: true},
		{Channel: "push", Opened: true, Clicked: false},
	}
	m := Recompute("u1", samples, time.Now())
	assert.Equal(t, []string{"email", "push"}, m.OptimalChannels)
}

func TestRecompute_ModalHourAndWeekdayFromEngagements(t *testing.T) {
	samples := []DeliverySample{
		{Channel: "email", HasEngagement: true, EngagedAt: time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC)},
		{Channel: "email", HasEngagement: true, EngagedAt: time.Date(2026, 7, 27, 9, 15, 0, 0, time.UTC)},
		{Channel: "email", HasEngagement: true, EngagedAt: time.Date(2026, 7, 28, 18, 0, 0, 0, time.UTC)},
	}
	m := Recompute("u1", samples, time.Now())
	assert.Equal(t, 9, m.ModalHour)
	assert.Equal(t, time.Monday, m.ModalWeekday)
}

func TestBestBatchType_PicksHighestOpenRatePerBatch(t *testing.T) {
	samples := []DeliverySample{
		{Channel: "email", BatchType: BatchImmediate, Opened: true},
		{Channel: "email", BatchType: BatchImmediate, Opened: false},
		{Channel: "email", BatchType: BatchHourly, Opened: true},
		{Channel: "email", BatchType: BatchHourly, Opened: true},
		{Channel: "email", BatchType: BatchDaily, Opened: false},
	}
	m := Recompute("u1", samples, time.Now())
	assert.Equal(t, BatchHourly, m.BestBatchType)
	assert.Equal(t, "hourly", m.OptimalFrequency)
}

func TestBestBatchType_DefaultsToDailyWithNoBatchedDeliveries(t *testing.T) {
	samples := []DeliverySample{
		{Channel: "email", Opened: true},
		{Channel: "push", Opened: false},
	}
	m := Recompute("u1", samples, time.Now())
	assert.Equal(t, BatchDaily, m.BestBatchType)
	assert.Equal(t, "daily", m.OptimalFrequency)
}
