package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

type metricsRow struct {
	UserID              string  `db:"user_id"`
	TotalNotifications  int     `db:"total_notifications"`
	OpenedCount         int     `db:"opened_count"`
	ClickedCount        int     `db:"clicked_count"`
	ActionCount         int     `db:"action_count"`
	OpenRate            float64 `db:"open_rate"`
	ClickRate           float64 `db:"click_rate"`
	ActionRate          float64 `db:"action_rate"`
	ByChannelJSON       []byte  `db:"by_channel"`
	OptimalChannelsJSON []byte  `db:"optimal_channels"`
	ModalWeekday        int     `db:"modal_weekday"`
	ModalHour           int     `db:"modal_hour"`
	BestBatchType       string  `db:"best_batch_type"`
	OptimalFrequency    string  `db:"optimal_frequency"`
}

// SaveEvent persists one raw EngagementEvent.
func (r *Repository) SaveEvent(ctx context.Context, e *domain.EngagementEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_events (id, user_id, delivery_id, type, device_type, platform, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.UserID, e.DeliveryID, string(e.Type), e.DeviceType, e.Platform, e.Timestamp)
	if err != nil {
		return fmt.Errorf("save engagement event %s: %w", e.ID, err)
	}
	return nil
}

// SaveMetrics upserts the recomputed per-user EngagementMetrics snapshot.
func (r *Repository) SaveMetrics(ctx context.Context, m *domain.EngagementMetrics) error {
	byChannel, err := json.Marshal(m.ByChannel)
	if err != nil {
		return fmt.Errorf("marshal by-channel metrics for %s: %w", m.UserID, err)
	}
	optimal, err := json.Marshal(m.OptimalChannels)
	if err != nil {
		return fmt.Errorf("marshal optimal channels for %s: %w", m.UserID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_engagement_metrics (
			user_id, total_notifications, opened_count, clicked_count, action_count,
			open_rate, click_rate, action_rate, by_channel, optimal_channels,
			modal_weekday, modal_hour, best_batch_type, optimal_frequency, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (user_id) DO UPDATE SET
			total_notifications = EXCLUDED.total_notifications,
			opened_count = EXCLUDED.opened_count,
			clicked_count = EXCLUDED.clicked_count,
			action_count = EXCLUDED.action_count,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			action_rate = EXCLUDED.action_rate,
			by_channel = EXCLUDED.by_channel,
			optimal_channels = EXCLUDED.optimal_channels,
			modal_weekday = EXCLUDED.modal_weekday,
			modal_hour = EXCLUDED.modal_hour,
			best_batch_type = EXCLUDED.best_batch_type,
			optimal_frequency = EXCLUDED.optimal_frequency,
			last_updated = EXCLUDED.last_updated`,
		m.UserID, m.TotalNotifications, m.OpenedCount, m.ClickedCount, m.ActionCount,
		m.OpenRate, m.ClickRate, m.ActionRate, byChannel, optimal,
		int(m.ModalWeekday), m.ModalHour, string(m.BestBatchType), m.OptimalFrequency, m.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save engagement metrics for %s: %w", m.UserID, err)
	}
	return nil
}

// GetMetrics loads the current EngagementMetrics snapshot for a user.
func (r *Repository) GetMetrics(ctx context.Context, userID string) (*domain.EngagementMetrics, error) {
	var row metricsRow
	err := r.db.GetContext(ctx, &row, `
		SELECT user_id, total_notifications, opened_count, clicked_count, action_count,
		       open_rate, click_rate, action_rate, by_channel, optimal_channels,
		       modal_weekday, modal_hour, best_batch_type, optimal_frequency
		FROM user_engagement_metrics WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("get engagement metrics for %s: %w", userID, err)
	}

	m := &domain.EngagementMetrics{
		UserID:              row.UserID,
		TotalNotifications:  row.TotalNotifications,
		OpenedCount:         row.OpenedCount,
		ClickedCount:        row.ClickedCount,
		ActionCount:         row.ActionCount,
		OpenRate:            row.OpenRate,
		ClickRate:           row.ClickRate,
		ActionRate:          row.ActionRate,
		ModalHour:           row.ModalHour,
		BestBatchType:       domain.BatchType(row.BestBatchType),
		OptimalFrequency:    row.OptimalFrequency,
	}
	if err := json.Unmarshal(row.ByChannelJSON, &m.ByChannel); err != nil {
		return nil, fmt.Errorf("unmarshal by-channel metrics for %s: %w", userID, err)
	}
	if err := json.Unmarshal(row.OptimalChannelsJSON, &m.OptimalChannels); err != nil {
		return nil, fmt.Errorf("unmarshal optimal channels for %s: %w", userID, err)
	}
	return m, nil
}

// SamplesForUser returns the DeliverySample set Recompute needs, joining
// deliveries against their batch type and terminal engagement event.
func (r *Repository) SamplesForUser(ctx context.Context, userID string) ([]domain.DeliverySample, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT d.channel,
		       COALESCE(b.type, 'immediate') AS batch_type,
		       d.status IN ('opened', 'clicked') AS opened,
		       d.status = 'clicked' AS clicked,
		       d.opened_at IS NOT NULL AS has_engagement,
		       EXISTS (
		           SELECT 1 FROM engagement_events e
		           WHERE e.delivery_id = d.id AND e.type = 'action_taken'
		       ) AS action_taken,
		       COALESCE(d.clicked_at, d.opened_at, d.delivered_at, d.sent_at, d.created_at) AS engaged_at
		FROM notification_deliveries d
		LEFT JOIN notification_batches b ON b.id = d.batch_id
		WHERE d.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list delivery samples for %s: %w", userID, err)
	}
	defer rows.Close()

	var samples []domain.DeliverySample
	for rows.Next() {
		var s domain.DeliverySample
		var batchType string
		if err := rows.Scan(&s.Channel, &batchType, &s.Opened, &s.Clicked, &s.HasEngagement, &s.ActionTaken, &s.EngagedAt); err != nil {
			return nil, fmt.Errorf("scan delivery sample for %s: %w", userID, err)
		}
		s.BatchType = domain.BatchType(batchType)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
