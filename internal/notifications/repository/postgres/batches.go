package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

type batchRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Channel        string         `db:"channel"`
	Type           string         `db:"type"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	ScheduledFor   time.Time      `db:"scheduled_for"`
	ProcessedAt    sql.NullTime   `db:"processed_at"`
	ItemsCount     int            `db:"items_count"`
	ProcessedCount int            `db:"processed_count"`
	Error          sql.NullString `db:"error_message"`
}

func (r batchRow) toDomain() *domain.NotificationBatch {
	b := &domain.NotificationBatch{
		ID:             r.ID,
		UserID:         r.UserID,
		Channel:        r.Channel,
		Type:           domain.BatchType(r.Type),
		Status:         domain.BatchStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		ScheduledFor:   r.ScheduledFor,
		ItemsCount:     r.ItemsCount,
		ProcessedCount: r.ProcessedCount,
		Error:          r.Error.String,
	}
	if r.ProcessedAt.Valid {
		b.ProcessedAt = &r.ProcessedAt.Time
	}
	return b
}

const batchColumns = `id, user_id, channel, type, status, created_at, scheduled_for,
	processed_at, items_count, processed_count, error_message`

// GetByID loads one NotificationBatch by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.NotificationBatch, error) {
	var row batchRow
	err := r.db.GetContext(ctx, &row, `SELECT `+batchColumns+` FROM notification_batches WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// Save upserts a NotificationBatch row.
func (r *Repository) Save(ctx context.Context, b *domain.NotificationBatch) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_batches (`+batchColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processed_at = EXCLUDED.processed_at,
			items_count = EXCLUDED.items_count,
			processed_count = EXCLUDED.processed_count,
			error_message = EXCLUDED.error_message`,
		b.ID, b.UserID, b.Channel, string(b.Type), string(b.Status), b.CreatedAt,
		b.ScheduledFor, nullTime(b.ProcessedAt), b.ItemsCount, b.ProcessedCount, nullString(b.Error),
	)
	if err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	return nil
}

// OpenBatch returns the still-open pending batch for (userID, channel,
// batchType), or nil if none is open.
func (r *Repository) OpenBatch(ctx context.Context, userID, channel string, batchType domain.BatchType) (*domain.NotificationBatch, error) {
	var row batchRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+batchColumns+` FROM notification_batches
		WHERE user_id = $1 AND channel = $2 AND type = $3
		  AND status = 'pending' AND scheduled_for > now()
		ORDER BY created_at DESC LIMIT 1`, userID, channel, string(batchType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open batch for %s/%s/%s: %w", userID, channel, batchType, err)
	}
	return row.toDomain(), nil
}

// Due returns up to limit batches whose scheduledFor <= asOf and are
// still pending.
func (r *Repository) Due(ctx context.Context, asOf time.Time, limit int) ([]*domain.NotificationBatch, error) {
	var rows []batchRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+batchColumns+` FROM notification_batches
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list due batches: %w", err)
	}
	out := make([]*domain.NotificationBatch, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// AddItem appends one alert onto an open batch.
func (r *Repository) AddItem(ctx context.Context, item *domain.NotificationBatchItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_batch_items (id, batch_id, alert_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id, alert_id) DO NOTHING`,
		item.ID, item.BatchID, item.AlertID, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("add batch item %s: %w", item.ID, err)
	}
	return nil
}

// ItemsForBatch returns every item queued onto a batch.
func (r *Repository) ItemsForBatch(ctx context.Context, batchID string) ([]*domain.NotificationBatchItem, error) {
	var items []*domain.NotificationBatchItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, batch_id, alert_id, created_at FROM notification_batch_items
		WHERE batch_id = $1 ORDER BY created_at ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list items for batch %s: %w", batchID, err)
	}
	return items, nil
}
