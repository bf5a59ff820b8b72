// Package postgres implements the notification pipeline's repository
// ports against PostgreSQL via sqlx, the durable store for
// NotificationBatch/Delivery/EngagementMetrics per the platform's
// persistence map.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// Repository implements the notifications repository ports against a
// shared sqlx.DB handle.
type Repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New builds a Postgres-backed Repository.
func New(db *sqlx.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("notifications-repository")}
}

type deliveryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	AlertID     string         `db:"alert_id"`
	BatchID     sql.NullString `db:"batch_id"`
	Channel     string         `db:"channel"`
	MessageID   sql.NullString `db:"message_id"`
	Content     string         `db:"content"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	SentAt      sql.NullTime   `db:"sent_at"`
	DeliveredAt sql.NullTime   `db:"delivered_at"`
	OpenedAt    sql.NullTime   `db:"opened_at"`
	ClickedAt   sql.NullTime   `db:"clicked_at"`
	Error       sql.NullString `db:"error_message"`
	RetryCount  int            `db:"retry_count"`
	FailedAt    sql.NullTime   `db:"failed_at"`
}

func (r deliveryRow) toDomain() *domain.Delivery {
	d := &domain.Delivery{
		ID:         r.ID,
		UserID:     r.UserID,
		AlertID:    r.AlertID,
		BatchID:    r.BatchID.String,
		Channel:    r.Channel,
		MessageID:  r.MessageID.String,
		Content:    r.Content,
		Status:     domain.DeliveryStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		Error:      r.Error.String,
		RetryCount: r.RetryCount,
	}
	if r.SentAt.Valid {
		d.SentAt = &r.SentAt.Time
	}
	if r.DeliveredAt.Valid {
		d.DeliveredAt = &r.DeliveredAt.Time
	}
	if r.OpenedAt.Valid {
		d.OpenedAt = &r.OpenedAt.Time
	}
	if r.ClickedAt.Valid {
		d.ClickedAt = &r.ClickedAt.Time
	}
	if r.FailedAt.Valid {
		d.FailedAt = &r.FailedAt.Time
	}
	return d
}

// GetByID loads one Delivery by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var row deliveryRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, alert_id, batch_id, channel, message_id, content,
		       status, created_at, sent_at, delivered_at, opened_at, clicked_at,
		       error_message, retry_count, failed_at
		FROM notification_deliveries WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get delivery %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// Save upserts a Delivery row.
func (r *Repository) Save(ctx context.Context, d *domain.Delivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries (
			id, user_id, alert_id, batch_id, channel, message_id, content,
			status, created_at, sent_at, delivered_at, opened_at, clicked_at,
			error_message, retry_count, failed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			opened_at = EXCLUDED.opened_at,
			clicked_at = EXCLUDED.clicked_at,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			failed_at = EXCLUDED.failed_at`,
		d.ID, d.UserID, d.AlertID, nullString(d.BatchID), d.Channel, nullString(d.MessageID),
		d.Content, string(d.Status), d.CreatedAt, nullTime(d.SentAt), nullTime(d.DeliveredAt),
		nullTime(d.OpenedAt), nullTime(d.ClickedAt), nullString(d.Error), d.RetryCount, nullTime(d.FailedAt),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("save delivery %s: %s: %w", d.ID, pqErr.Message, err)
		}
		return fmt.Errorf("save delivery %s: %w", d.ID, err)
	}
	return nil
}

// Failed returns up to limit deliveries still within their retry budget.
func (r *Repository) Failed(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	var rows []deliveryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, alert_id, batch_id, channel, message_id, content,
		       status, created_at, sent_at, delivered_at, opened_at, clicked_at,
		       error_message, retry_count, failed_at
		FROM notification_deliveries
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2`, domain.MaxDeliveryRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed deliveries: %w", err)
	}
	out := make([]*domain.Delivery, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
