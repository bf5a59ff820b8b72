package postgres

import (
	"context"
	"fmt"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// Create inserts one in-app notification feed row, satisfying
// channels.InAppStore.
func (r *Repository) Create(ctx context.Context, n *domain.InAppNotification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO in_app_notifications (id, user_id, alert_id, title, message, is_read, is_clicked, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		n.ID, n.UserID, n.AlertID, n.Title, n.Message, n.IsRead, n.IsClicked, n.ExpiresAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create in-app notification %s: %w", n.ID, err)
	}
	return nil
}
