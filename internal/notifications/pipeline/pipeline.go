// Package pipeline implements the Notification Pipeline (C7): batching,
// throttling, channel dispatch and retry; the engagement-metrics rollup
// lives in the engagement package. It satisfies ruleengine.NotificationRequester so the Rule
// Engine can hand off an Alert for delivery without knowing how
// batching or throttling is done.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "github.com/DimaJoyti/priceguard/internal/alerts/domain"
	"github.com/DimaJoyti/priceguard/internal/notifications/channels"
	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
	"github.com/DimaJoyti/priceguard/internal/notifications/repository"
	"github.com/DimaJoyti/priceguard/pkg/ratelimit"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ImmediatePriorityThreshold forces immediate delivery for any alert at
// or above this priority, regardless of the user's configured batching
// mode, mirroring how urgent alerts always bypass aggregation.
const ImmediatePriorityThreshold = 9

// AlertReader resolves an Alert by id so a batch sweep can rebuild its
// message content without the Rule Engine threading it through.
type AlertReader interface {
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
}

// Preferences resolves per-user delivery preferences the pipeline
// consults when an alert doesn't force immediate delivery.
type Preferences interface {
	BatchTypeFor(ctx context.Context, userID, channel string) (domain.BatchType, error)
	DailySummaryHour(ctx context.Context, userID string) (int, error)
}

// ChannelResolver is the subset of channels.Registry the pipeline needs.
type ChannelResolver interface {
	Resolve(channel string) (channels.Adapter, error)
}

// Pipeline is the Notification Pipeline's core: it implements
// ruleengine.NotificationRequester and owns batching, throttling, and
// dispatch to channel adapters.
type Pipeline struct {
	deliveries repository.DeliveryRepository
	batches    repository.BatchRepository
	alerts     AlertReader
	prefs      Preferences
	channels   ChannelResolver
	limiter    *ratelimit.Limiter
	clock      Clock
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(
	deliveries repository.DeliveryRepository,
	batches repository.BatchRepository,
	alertReader AlertReader,
	prefs Preferences,
	channelResolver ChannelResolver,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		deliveries: deliveries,
		batches:    batches,
		alerts:     alertReader,
		prefs:      prefs,
		channels:   channelResolver,
		limiter:    limiter,
		clock:      SystemClock{},
		logger:     logger.Named("notification-pipeline"),
	}
}

// RequestDelivery is the Rule Engine's inbound port: schedule (or send)
// one alert on one channel, subject to throttling and the user's
// batching preference.
func (p *Pipeline) RequestDelivery(ctx context.Context, alert *alerts.Alert, channel string) error {
	if p.limiter.AlreadySent(alert.ID, channel) {
		p.logger.Info("suppressed duplicate alert delivery",
			zap.String("alert_id", alert.ID), zap.String("channel", channel))
		return nil
	}
	if !p.limiter.Allow(alert.UserID, channel) {
		p.logger.Info("throttled alert delivery",
			zap.String("user_id", alert.UserID), zap.String("channel", channel))
		return nil
	}

	batchType, err := p.prefs.BatchTypeFor(ctx, alert.UserID, channel)
	if err != nil {
		return fmt.Errorf("pipeline: resolve batch preference for user %s: %w", alert.UserID, err)
	}
	if alert.Priority >= ImmediatePriorityThreshold {
		batchType = domain.BatchImmediate
	}

	if batchType == domain.BatchImmediate {
		return p.sendImmediate(ctx, alert, channel)
	}
	return p.appendToBatch(ctx, alert, channel, batchType)
}

// sendImmediate creates a standalone Delivery and dispatches it now.
func (p *Pipeline) sendImmediate(ctx context.Context, alert *alerts.Alert, channel string) error {
	now := p.clock.Now()
	delivery := domain.NewDelivery(uuid.NewString(), alert.UserID, alert.ID, channel, alert.Message, now)
	if err := p.deliveries.Save(ctx, delivery); err != nil {
		return fmt.Errorf("pipeline: save immediate delivery for alert %s: %w", alert.ID, err)
	}
	return p.dispatch(ctx, delivery)
}

// appendToBatch finds or opens a (user, channel, batchType) batch and
// queues the alert onto it.
func (p *Pipeline) appendToBatch(ctx context.Context, alert *alerts.Alert, channel string, batchType domain.BatchType) error {
	now := p.clock.Now()

	batch, err := p.batches.OpenBatch(ctx, alert.UserID, channel, batchType)
	if err != nil {
		return fmt.Errorf("pipeline: find open batch for user %s: %w", alert.UserID, err)
	}
	if batch == nil {
		scheduledFor, err := p.nextBoundary(ctx, alert.UserID, batchType, now)
		if err != nil {
			return err
		}
		batch = domain.NewBatch(uuid.NewString(), alert.UserID, channel, batchType, scheduledFor, now)
		if err := p.batches.Save(ctx, batch); err != nil {
			return fmt.Errorf("pipeline: open batch for user %s: %w", alert.UserID, err)
		}
	}

	if err := batch.Append(); err != nil {
		return fmt.Errorf("pipeline: append to batch %s: %w", batch.ID, err)
	}
	if err := p.batches.Save(ctx, batch); err != nil {
		return fmt.Errorf("pipeline: save batch %s: %w", batch.ID, err)
	}
	item := &domain.NotificationBatchItem{ID: uuid.NewString(), BatchID: batch.ID, AlertID: alert.ID, CreatedAt: now}
	if err := p.batches.AddItem(ctx, item); err != nil {
		return fmt.Errorf("pipeline: add item to batch %s: %w", batch.ID, err)
	}
	return nil
}

func (p *Pipeline) nextBoundary(ctx context.Context, userID string, batchType domain.BatchType, now time.Time) (time.Time, error) {
	if batchType == domain.BatchHourly {
		return domain.NextHourBoundary(now), nil
	}
	hour, err := p.prefs.DailySummaryHour(ctx, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("pipeline: resolve daily summary hour for user %s: %w", userID, err)
	}
	return domain.NextDailySummary(now, hour), nil
}

// ProcessBatch dispatches one due batch as a single aggregated Delivery.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch *domain.NotificationBatch) error {
	batch.Start()
	if err := p.batches.Save(ctx, batch); err != nil {
		return fmt.Errorf("pipeline: start batch %s: %w", batch.ID, err)
	}

	items, err := p.batches.ItemsForBatch(ctx, batch.ID)
	if err != nil {
		batch.Fail(err.Error(), p.clock.Now())
		_ = p.batches.Save(ctx, batch)
		return fmt.Errorf("pipeline: load items for batch %s: %w", batch.ID, err)
	}

	content, sentCount := p.renderBatch(ctx, batch, items)

	delivery := domain.NewDelivery(uuid.NewString(), batch.UserID, "", batch.Channel, content, p.clock.Now())
	delivery.BatchID = batch.ID
	if err := p.deliveries.Save(ctx, delivery); err != nil {
		batch.Fail(err.Error(), p.clock.Now())
		_ = p.batches.Save(ctx, batch)
		return fmt.Errorf("pipeline: save batch delivery for %s: %w", batch.ID, err)
	}

	if err := p.dispatch(ctx, delivery); err != nil {
		batch.Fail(err.Error(), p.clock.Now())
		_ = p.batches.Save(ctx, batch)
		return err
	}

	batch.Complete(sentCount, p.clock.Now())
	return p.batches.Save(ctx, batch)
}

// renderBatch joins every resolvable alert message into one digest,
// tolerating individual lookup failures rather than failing the batch.
func (p *Pipeline) renderBatch(ctx context.Context, batch *domain.NotificationBatch, items []*domain.NotificationBatchItem) (string, int) {
	var lines []string
	for _, item := range items {
		alert, err := p.alerts.GetByID(ctx, item.AlertID)
		if err != nil {
			p.logger.Warn("skipping unresolvable alert in batch",
				zap.String("batch_id", batch.ID), zap.String("alert_id", item.AlertID), zap.Error(err))
			continue
		}
		lines = append(lines, alert.Message)
	}
	return strings.Join(lines, "\n"), len(lines)
}

// Sweep dispatches every batch whose scheduledFor has passed.
func (p *Pipeline) Sweep(ctx context.Context, limit int) (int, error) {
	due, err := p.batches.Due(ctx, p.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list due batches: %w", err)
	}
	dispatched := 0
	for _, batch := range due {
		if err := p.ProcessBatch(ctx, batch); err != nil {
			p.logger.Error("batch processing failed", zap.String("batch_id", batch.ID), zap.Error(err))
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// RetrySweep re-dispatches failed deliveries whose backoff has elapsed.
func (p *Pipeline) RetrySweep(ctx context.Context, limit int) (int, error) {
	failed, err := p.deliveries.Failed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list failed deliveries: %w", err)
	}
	retried := 0
	for _, d := range failed {
		if !d.CanRetry() {
			continue
		}
		if p.clock.Now().Before(p.nextRetryAt(d)) {
			continue
		}
		d.ResetForRetry()
		if err := p.dispatch(ctx, d); err != nil {
			p.logger.Warn("retry dispatch failed", zap.String("delivery_id", d.ID), zap.Error(err))
		}
		retried++
	}
	return retried, nil
}

// nextRetryAt is the earliest instant a failed Delivery may be retried:
// its last failure time plus the lane-agnostic exponential backoff.
func (p *Pipeline) nextRetryAt(d *domain.Delivery) time.Time {
	failedAt := d.CreatedAt
	if d.FailedAt != nil {
		failedAt = *d.FailedAt
	}
	return failedAt.Add(d.RetryBackoff())
}

// dispatch invokes the channel adapter and records the outcome.
func (p *Pipeline) dispatch(ctx context.Context, delivery *domain.Delivery) error {
	adapter, err := p.channels.Resolve(delivery.Channel)
	if err != nil {
		_ = delivery.MarkFailed(err.Error(), p.clock.Now())
		_ = p.deliveries.Save(ctx, delivery)
		return fmt.Errorf("pipeline: resolve channel %s for delivery %s: %w", delivery.Channel, delivery.ID, err)
	}

	messageID, err := adapter.Send(ctx, delivery)
	if err != nil {
		retryErr := delivery.MarkFailed(err.Error(), p.clock.Now())
		if saveErr := p.deliveries.Save(ctx, delivery); saveErr != nil {
			p.logger.Error("failed to persist failed delivery", zap.String("delivery_id", delivery.ID), zap.Error(saveErr))
		}
		if retryErr != nil {
			p.logger.Warn("delivery exhausted retry budget", zap.String("delivery_id", delivery.ID))
		}
		return fmt.Errorf("pipeline: channel send failed for delivery %s: %w", delivery.ID, err)
	}

	if err := delivery.MarkSent(messageID, p.clock.Now()); err != nil {
		return fmt.Errorf("pipeline: mark delivery %s sent: %w", delivery.ID, err)
	}
	return p.deliveries.Save(ctx, delivery)
}
