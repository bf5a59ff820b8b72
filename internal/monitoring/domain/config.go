package domain

import (
	"time"

	"github.com/DimaJoyti/priceguard/pkg/money"
)

// Frequency names a monitoring cadence. Custom lets a config carry an
// arbitrary interval instead of one of the three named tiers.
type Frequency string

const (
	FrequencyHigh   Frequency = "high"
	FrequencyNormal Frequency = "normal"
	FrequencyLow    Frequency = "low"
	FrequencyCustom Frequency = "custom"
)

// Interval returns the re-check cadence for a frequency tier. Custom
// frequencies carry their own interval on MonitoringConfig.CustomInterval
// and never reach this method with a meaningful default.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHigh:
		return 4 * time.Hour
	case FrequencyLow:
		return 24 * time.Hour
	default:
		return 12 * time.Hour // normal
	}
}

// MonitoringConfig is the one-per-Product policy record the Scheduler and
// Analyzer read and mutate. Invariant: whenever both LastMonitored and
// NextScheduled are set, NextScheduled >= LastMonitored + Interval().
type MonitoringConfig struct {
	ProductID            string        `json:"product_id" db:"product_id"`
	Frequency            Frequency     `json:"frequency" db:"frequency"`
	CustomInterval       time.Duration `json:"custom_interval,omitempty" db:"custom_interval"`
	Active               bool          `json:"active" db:"active"`
	TakeScreenshot       bool          `json:"take_screenshot" db:"take_screenshot"`
	NotifyOnAnyChange    bool          `json:"notify_on_any_change" db:"notify_on_any_change"`
	PriceThresholdAbs    money.Amount  `json:"price_threshold_abs" db:"price_threshold_abs"`
	PriceThresholdPct    float64       `json:"price_threshold_pct" db:"price_threshold_pct"`
	ManualPriorityBoost  float64       `json:"manual_priority_boost" db:"manual_priority_boost"`
	PriorityScore        float64       `json:"priority_score" db:"priority_score"`
	LastMonitored        *time.Time    `json:"last_monitored,omitempty" db:"last_monitored"`
	NextScheduled        *time.Time    `json:"next_scheduled,omitempty" db:"next_scheduled"`
}

// Interval resolves the effective cadence, honoring a custom override.
func (c *MonitoringConfig) Interval() time.Duration {
	if c.Frequency == FrequencyCustom && c.CustomInterval > 0 {
		return c.CustomInterval
	}
	return c.Frequency.Interval()
}

// DefaultConfig returns the policy a product gets when scheduleImmediate
// is called for a product with no existing MonitoringConfig.
func DefaultConfig(productID string) *MonitoringConfig {
	return &MonitoringConfig{
		ProductID:     productID,
		Frequency:     FrequencyNormal,
		Active:        true,
		PriorityScore: 5.5,
	}
}

// MarkMonitored advances LastMonitored/NextScheduled after a completed
// observation, preserving the invariant documented on the type.
func (c *MonitoringConfig) MarkMonitored(at time.Time) {
	c.LastMonitored = &at
	next := at.Add(c.Interval())
	c.NextScheduled = &next
}
