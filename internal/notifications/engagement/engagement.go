// Package engagement implements the engagement-tracking half of the
// Notification Pipeline (C7): recording a delivery's opens/clicks/actions
// and rolling them up into EngagementMetrics, mirroring the original's
// EngagementService.
package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
	"github.com/DimaJoyti/priceguard/internal/notifications/repository"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator produces the ID for a new EngagementEvent.
type IDGenerator func() string

// Service implements engagement tracking: recording one EngagementEvent
// against a Delivery, advancing that Delivery's status, and recomputing
// the owning user's EngagementMetrics rollup.
type Service struct {
	deliveries repository.DeliveryRepository
	engagement repository.EngagementRepository
	newID      IDGenerator
	clock      Clock
	logger     *zap.Logger
}

// New builds a Service.
func New(
	deliveries repository.DeliveryRepository,
	engagement repository.EngagementRepository,
	newID IDGenerator,
	logger *zap.Logger,
) *Service {
	return &Service{
		deliveries: deliveries,
		engagement: engagement,
		newID:      newID,
		clock:      SystemClock{},
		logger:     logger.Named("engagement"),
	}
}

// Track records one interaction with a Delivery: it advances the
// Delivery's status for delivered/opened/clicked events, classifies
// device/platform from userAgent (empty if the caller has none),
// persists the raw EngagementEvent, and recomputes the user's
// EngagementMetrics rollup from their full delivery history.
func (s *Service) Track(ctx context.Context, deliveryID string, eventType domain.EngagementEventType, userAgent string) (*domain.EngagementEvent, error) {
	delivery, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("engagement: load delivery %s: %w", deliveryID, err)
	}

	now := s.clock.Now()
	switch eventType {
	case domain.EngagementDelivered, domain.EngagementOpened, domain.EngagementClicked:
		if err := advanceDelivery(delivery, eventType, now); err != nil {
			s.logger.Warn("delivery status did not advance",
				zap.String("delivery_id", deliveryID), zap.String("event_type", string(eventType)), zap.Error(err))
		} else if err := s.deliveries.Save(ctx, delivery); err != nil {
			return nil, fmt.Errorf("engagement: save delivery %s: %w", deliveryID, err)
		}
	}

	event := domain.NewEngagementEvent(s.newID(), delivery.UserID, deliveryID, eventType, userAgent, now)
	if err := s.engagement.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("engagement: save event for delivery %s: %w", deliveryID, err)
	}

	if err := s.recomputeMetrics(ctx, delivery.UserID, now); err != nil {
		s.logger.Error("failed to recompute engagement metrics",
			zap.String("user_id", delivery.UserID), zap.Error(err))
	}

	return event, nil
}

// advanceDelivery maps an EngagementEventType onto the matching Delivery
// status transition. action_taken and dismissed carry no Delivery status
// of their own; they are recorded only as raw events.
func advanceDelivery(d *domain.Delivery, eventType domain.EngagementEventType, at time.Time) error {
	switch eventType {
	case domain.EngagementDelivered:
		return d.MarkDelivered(at)
	case domain.EngagementOpened:
		return d.MarkOpened(at)
	case domain.EngagementClicked:
		return d.MarkClicked(at)
	default:
		return nil
	}
}

// recomputeMetrics rebuilds userID's EngagementMetrics snapshot from its
// full delivery history and persists it, mirroring update_user_metrics.
func (s *Service) recomputeMetrics(ctx context.Context, userID string, now time.Time) error {
	samples, err := s.engagement.SamplesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list delivery samples: %w", err)
	}
	metrics := domain.Recompute(userID, samples, now)
	if err := s.engagement.SaveMetrics(ctx, &metrics); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}
