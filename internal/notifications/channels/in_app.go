package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// InAppStore persists the InAppNotification feed rows an in-app Delivery
// writes instead of calling an external provider.
type InAppStore interface {
	Create(ctx context.Context, n *domain.InAppNotification) error
}

// InAppAdapter "delivers" a Delivery by writing it into the user's in-app
// notification feed; there is no external provider round trip.
type InAppAdapter struct {
	store  InAppStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewInAppAdapter builds an InAppAdapter backed by store.
func NewInAppAdapter(store InAppStore, clock func() time.Time, logger *zap.Logger) *InAppAdapter {
	return &InAppAdapter{store: store, clock: clock, logger: logger.Named("in-app-adapter")}
}

// Send writes the Delivery into the user's in-app feed.
func (a *InAppAdapter) Send(ctx context.Context, delivery *domain.Delivery) (string, error) {
	now := a.clock()
	n := domain.NewInAppNotification(uuid.NewString(), delivery.UserID, delivery.AlertID, "PriceGuard alert", delivery.Content, now)
	if err := a.store.Create(ctx, n); err != nil {
		return "", fmt.Errorf("write in-app notification for delivery %s: %w", delivery.ID, err)
	}
	return n.ID, nil
}
