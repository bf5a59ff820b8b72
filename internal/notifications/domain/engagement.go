package domain

import (
	"sort"
	"strings"
	"time"
)

// EngagementEventType is one external signal advancing a Delivery's
// status and feeding the metrics rollup.
type EngagementEventType string

const (
	EngagementDelivered   EngagementEventType = "delivered"
	EngagementOpened      EngagementEventType = "opened"
	EngagementClicked     EngagementEventType = "clicked"
	EngagementActionTaken EngagementEventType = "action_taken"
	EngagementDismissed   EngagementEventType = "dismissed"
)

// EngagementEvent is one recorded interaction with a Delivery, arriving
// through the API boundary.
type EngagementEvent struct {
	ID         string              `json:"id" db:"id"`
	UserID     string              `json:"user_id" db:"user_id"`
	DeliveryID string              `json:"delivery_id" db:"delivery_id"`
	Type       EngagementEventType `json:"type" db:"type"`
	DeviceType string              `json:"device_type,omitempty" db:"device_type"`
	Platform   string              `json:"platform,omitempty" db:"platform"`
	Timestamp  time.Time           `json:"timestamp" db:"timestamp"`
}

// NewEngagementEvent builds an EngagementEvent for one tracked
// interaction, classifying device and platform from the raw User-Agent
// header the caller observed (empty if the caller has none to offer).
func NewEngagementEvent(id, userID, deliveryID string, eventType EngagementEventType, userAgent string, at time.Time) *EngagementEvent {
	deviceType, platform := ClassifyUserAgent(userAgent)
	return &EngagementEvent{
		ID:         id,
		UserID:     userID,
		DeliveryID: deliveryID,
		Type:       eventType,
		DeviceType: deviceType,
		Platform:   platform,
		Timestamp:  at,
	}
}

// ClassifyUserAgent infers a coarse device type (mobile/tablet/desktop)
// and platform (android/ios/windows/macos/linux) from a raw User-Agent
// header, mirroring track_engagement's substring checks. Both results
// are empty when userAgent is empty, since that means the caller had no
// request context to classify (a server-side retry sweep, say) rather
// than an unrecognized device.
func ClassifyUserAgent(userAgent string) (deviceType, platform string) {
	if userAgent == "" {
		return "", ""
	}
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "mobile"):
		deviceType = "mobile"
	case strings.Contains(ua, "tablet"):
		deviceType = "tablet"
	default:
		deviceType = "desktop"
	}

	switch {
	case strings.Contains(ua, "android"):
		platform = "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		platform = "ios"
	case strings.Contains(ua, "windows"):
		platform = "windows"
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os"):
		platform = "macos"
	case strings.Contains(ua, "linux"):
		platform = "linux"
	}
	return deviceType, platform
}

// ChannelMetrics is the per-channel rollup used to rank channels and
// feed default rule configuration.
type ChannelMetrics struct {
	Total      int     `json:"total"`
	Opened     int     `json:"opened"`
	Clicked    int     `json:"clicked"`
	ActionTook int     `json:"action_taken"`
	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
	ActionRate float64 `json:"action_rate"`
}

// EngagementMetrics is the aggregated-per-user rollup recomputed whenever
// a new EngagementEvent arrives.
type EngagementMetrics struct {
	UserID            string                    `json:"user_id" db:"user_id"`
	TotalNotifications int                      `json:"total_notifications" db:"total_notifications"`
	OpenedCount       int                        `json:"opened_count" db:"opened_count"`
	ClickedCount      int                        `json:"clicked_count" db:"clicked_count"`
	ActionCount       int                        `json:"action_count" db:"action_count"`
	OpenRate          float64                    `json:"open_rate" db:"open_rate"`
	ClickRate         float64                    `json:"click_rate" db:"click_rate"`
	ActionRate        float64                    `json:"action_rate" db:"action_rate"`
	ByChannel         map[string]ChannelMetrics  `json:"by_channel" db:"-"`
	OptimalChannels   []string                   `json:"optimal_channels" db:"-"`
	ModalWeekday      time.Weekday               `json:"modal_weekday" db:"modal_weekday"`
	ModalHour         int                        `json:"modal_hour" db:"modal_hour"`
	BestBatchType     BatchType                  `json:"best_batch_type" db:"best_batch_type"`
	OptimalFrequency  string                     `json:"optimal_frequency" db:"optimal_frequency"`
	LastUpdated       time.Time                  `json:"last_updated" db:"last_updated"`
}

// DeliverySample is the minimal per-delivery shape the metrics rollup
// needs: which channel, which batch type, how it was engaged with and
// when. Callers build these from stored Delivery/Batch/EngagementEvent
// rows; the rollup itself has no persistence dependency.
type DeliverySample struct {
	Channel        string
	BatchType      BatchType
	Opened         bool
	Clicked        bool
	ActionTaken    bool
	EngagedAt      time.Time
	HasEngagement  bool
}

// Recompute derives a fresh EngagementMetrics snapshot from the set of
// samples observed for one user, mirroring the engagement service's
// aggregation pass.
func Recompute(userID string, samples []DeliverySample, now time.Time) EngagementMetrics {
	m := EngagementMetrics{
		UserID:      userID,
		ByChannel:   make(map[string]ChannelMetrics),
		LastUpdated: now,
	}

	weekdayCounts := make(map[time.Weekday]int)
	hourCounts := make(map[int]int)
	batchTotals := make(map[BatchType]int)
	batchOpens := make(map[BatchType]int)

	for _, s := range samples {
		m.TotalNotifications++
		cm := m.ByChannel[s.Channel]
		cm.Total++
		if s.Opened {
			m.OpenedCount++
			cm.Opened++
		}
		if s.Clicked {
			m.ClickedCount++
			cm.Clicked++
		}
		if s.ActionTaken {
			m.ActionCount++
			cm.ActionTook++
		}
		m.ByChannel[s.Channel] = cm

		if s.BatchType != "" {
			batchTotals[s.BatchType]++
			if s.Opened {
				batchOpens[s.BatchType]++
			}
		}
		if s.HasEngagement {
			weekdayCounts[s.EngagedAt.Weekday()]++
			hourCounts[s.EngagedAt.Hour()]++
		}
	}

	m.OpenRate = rate(m.OpenedCount, m.TotalNotifications)
	m.ClickRate = rate(m.ClickedCount, m.TotalNotifications)
	m.ActionRate = rate(m.ActionCount, m.TotalNotifications)

	for channel, cm := range m.ByChannel {
		cm.OpenRate = rate(cm.Opened, cm.Total)
		cm.ClickRate = rate(cm.Clicked, cm.Total)
		cm.ActionRate = rate(cm.ActionTook, cm.Total)
		m.ByChannel[channel] = cm
	}

	m.OptimalChannels = rankChannels(m.ByChannel)
	m.ModalWeekday = modalWeekday(weekdayCounts)
	m.ModalHour = modalHour(hourCounts)
	m.BestBatchType = bestBatchType(batchTotals, batchOpens)
	m.OptimalFrequency = string(m.BestBatchType)

	return m
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// rankChannels orders channels by a blended engagement score (click rate
// weighted above open rate), highest first.
func rankChannels(byChannel map[string]ChannelMetrics) []string {
	type scored struct {
		channel string
		score   float64
	}
	scores := make([]scored, 0, len(byChannel))
	for channel, cm := range byChannel {
		scores = append(scores, scored{channel, cm.ClickRate*0.7 + cm.OpenRate*0.3})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score == scores[j].score {
			return scores[i].channel < scores[j].channel
		}
		return scores[i].score > scores[j].score
	})
	ordered := make([]string, len(scores))
	for i, s := range scores {
		ordered[i] = s.channel
	}
	return ordered
}

func modalWeekday(counts map[time.Weekday]int) time.Weekday {
	var best time.Weekday
	bestCount := -1
	for day := time.Sunday; day <= time.Saturday; day++ {
		if c := counts[day]; c > bestCount {
			best, bestCount = day, c
		}
	}
	return best
}

func modalHour(counts map[int]int) int {
	best, bestCount := 0, -1
	for hour := 0; hour < 24; hour++ {
		if c := counts[hour]; c > bestCount {
			best, bestCount = hour, c
		}
	}
	return best
}

// bestBatchType picks the batch type with the highest historical open
// rate for this user, the same comparison update_user_metrics runs over
// its per-batch_type open-rate grouping (batch_engagement in the
// original), defaulting to daily when no sample carries a batch type at
// all. Samples typed immediate are ranked like hourly and daily ones, so
// a user whose deliveries were all immediate gets immediate.
func bestBatchType(totals, opens map[BatchType]int) BatchType {
	best := BatchDaily
	bestRate := -1.0
	for _, bt := range []BatchType{BatchImmediate, BatchHourly, BatchDaily} {
		total := totals[bt]
		if total == 0 {
			continue
		}
		if r := rate(opens[bt], total); r > bestRate {
			best, bestRate = bt, r
		}
	}
	return best
}
