package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

type preferenceRow struct {
	UserID                string `db:"user_id"`
	NotificationFrequency string `db:"notification_frequency"`
	DailySummaryHour      int    `db:"daily_summary_hour"`
}

func (r preferenceRow) toDomain() *domain.UserPreference {
	return &domain.UserPreference{
		UserID:                r.UserID,
		NotificationFrequency: domain.BatchType(r.NotificationFrequency),
		DailySummaryHour:      r.DailySummaryHour,
	}
}

// GetByUserID returns the stored preference row, or the package default
// if the user has never saved one.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*domain.UserPreference, error) {
	var row preferenceRow
	err := r.db.GetContext(ctx, &row, `
		SELECT user_id, notification_frequency, daily_summary_hour
		FROM user_preferences WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		pref := domain.DefaultUserPreference(userID)
		return &pref, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference for user %s: %w", userID, err)
	}
	return row.toDomain(), nil
}

// BatchTypeFor satisfies pipeline.Preferences: every channel currently
// shares one stored frequency, mirroring the original's single
// per-user notification_frequency column.
func (r *Repository) BatchTypeFor(ctx context.Context, userID, channel string) (domain.BatchType, error) {
	pref, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return pref.NotificationFrequency, nil
}

// DailySummaryHour satisfies pipeline.Preferences.
func (r *Repository) DailySummaryHour(ctx context.Context, userID string) (int, error) {
	pref, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return pref.DailySummaryHour, nil
}

// Save upserts a user's preference row.
func (r *Repository) Save(ctx context.Context, pref *domain.UserPreference) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, notification_frequency, daily_summary_hour)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			notification_frequency = EXCLUDED.notification_frequency,
			daily_summary_hour = EXCLUDED.daily_summary_hour`,
		pref.UserID, string(pref.NotificationFrequency), pref.DailySummaryHour,
	)
	if err != nil {
		return fmt.Errorf("save preference for user %s: %w", pref.UserID, err)
	}
	return nil
}
