// Package repository declares the persistence ports the notification
// pipeline depends on. A Postgres adapter lives under .../postgres;
// services accept these interfaces so they can be exercised against
// in-memory fakes in tests.
package repository

import (
	"context"
	"time"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// DeliveryRepository persists Delivery rows.
type DeliveryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	Save(ctx context.Context, d *domain.Delivery) error
	// Failed returns up to limit failed deliveries still within their
	// retry budget. It does not filter on backoff; the caller checks it.
	Failed(ctx context.Context, limit int) ([]*domain.Delivery, error)
}

// BatchRepository persists NotificationBatch rows and their items.
type BatchRepository interface {
	GetByID(ctx context.Context, id string) (*domain.NotificationBatch, error)
	Save(ctx context.Context, b *domain.NotificationBatch) error
	// OpenBatch returns the still-open batch for (userID, channel,
	// batchType), or nil if none is open.
	OpenBatch(ctx context.Context, userID, channel string, batchType domain.BatchType) (*domain.NotificationBatch, error)
	// Due returns up to limit batches whose scheduledFor <= asOf and are
	// still pending, for the periodic sweep.
	Due(ctx context.Context, asOf time.Time, limit int) ([]*domain.NotificationBatch, error)
	AddItem(ctx context.Context, item *domain.NotificationBatchItem) error
	ItemsForBatch(ctx context.Context, batchID string) ([]*domain.NotificationBatchItem, error)
}

// ContactRepository resolves the addresses the email/push channel
// adapters need to reach a user: the original's User.email and the
// related device's push_token.
type ContactRepository interface {
	Email(ctx context.Context, userID string) (string, error)
	PushToken(ctx context.Context, userID string) (string, error)
}

// PreferenceRepository persists per-user notification settings.
type PreferenceRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.UserPreference, error)
	Save(ctx context.Context, pref *domain.UserPreference) error
}

// EngagementRepository persists raw EngagementEvents and the derived
// per-user EngagementMetrics rollup.
type EngagementRepository interface {
	SaveEvent(ctx context.Context, e *domain.EngagementEvent) error
	SaveMetrics(ctx context.Context, m *domain.EngagementMetrics) error
	GetMetrics(ctx context.Context, userID string) (*domain.EngagementMetrics, error)
	// SamplesForUser returns the DeliverySample set Recompute needs to
	// rebuild a user's EngagementMetrics from scratch.
	SamplesForUser(ctx context.Context, userID string) ([]domain.DeliverySample, error)
}
