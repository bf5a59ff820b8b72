// Package analyzer implements the Result Analyzer (C5): it diffs an
// Extractor's ObservationPayload against the prior observation, persists
// the outcome, advances the owning MonitoringConfig, widens the Product's
// rolling price summaries, and emits an Event for the Rule Engine.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/repository"
	"github.com/DimaJoyti/priceguard/pkg/money"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EventSink is where the Analyzer publishes Events for the Rule Engine to
// consume. The Kafka-backed implementation lives in pkg/eventbus; tests
// can use an in-memory sink.
type EventSink interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// ConfigReader is the subset of ConfigRepository the Analyzer needs.
type ConfigReader interface {
	GetByProductID(ctx context.Context, productID string) (*domain.MonitoringConfig, error)
	Save(ctx context.Context, config *domain.MonitoringConfig) error
}

// Analyzer implements dispatcher.Analyzer.
type Analyzer struct {
	products      repository.ProductRepository
	configs       ConfigReader
	observations  repository.ObservationRepository
	sink          EventSink
	clock         Clock
	logger        *zap.Logger
}

func New(
	products repository.ProductRepository,
	configs ConfigReader,
	observations repository.ObservationRepository,
	sink EventSink,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		products:     products,
		configs:      configs,
		observations: observations,
		sink:         sink,
		clock:        SystemClock{},
		logger:       logger.Named("analyzer"),
	}
}

// Analyze runs the post-extraction handoff: diff against the prior
// observation, persist, advance the config, widen the product's summaries,
// and publish an Event when a trigger fires.
func (a *Analyzer) Analyze(ctx context.Context, task *domain.Task, product *domain.Product, payload domain.ObservationPayload) error {
	now := a.clock.Now()

	prior, err := a.observations.LatestForProduct(ctx, product.ID)
	if err != nil {
		return fmt.Errorf("analyzer: load prior observation: %w", err)
	}

	result := a.diff(product, prior, payload, task.ID, now)

	cfg, err := a.configs.GetByProductID(ctx, product.ID)
	if err != nil {
		return fmt.Errorf("analyzer: load monitoring config: %w", err)
	}
	result.Trigger = a.evaluateTriggers(product, cfg, result, payload)

	if err := a.observations.Save(ctx, result); err != nil {
		return fmt.Errorf("analyzer: persist observation: %w", err)
	}

	product.ApplyObservation(payload.Price, payload.InStock, now)
	if err := a.products.Save(ctx, product); err != nil {
		return fmt.Errorf("analyzer: persist product: %w", err)
	}

	cfg.MarkMonitored(now)
	if err := a.configs.Save(ctx, cfg); err != nil {
		return fmt.Errorf("analyzer: persist monitoring config: %w", err)
	}

	if result.Trigger == domain.TriggerNone {
		return nil
	}

	event := a.buildEvent(product, result, payload, now)
	if err := a.sink.Publish(ctx, event); err != nil {
		a.logger.Error("failed to publish event", zap.String("product_id", product.ID), zap.Error(err))
		return fmt.Errorf("analyzer: publish event: %w", err)
	}
	return nil
}

// diff populates an ObservationResult from the payload and the prior
// observation (or zero values if this is the product's first check).
func (a *Analyzer) diff(product *domain.Product, prior *domain.ObservationResult, payload domain.ObservationPayload, taskID string, now time.Time) *domain.ObservationResult {
	result := &domain.ObservationResult{
		ID:                 uuid.NewString(),
		ProductID:          product.ID,
		TaskID:             taskID,
		ObservedAt:         now,
		CurrentPrice:       payload.Price,
		CurrentlyAvailable: payload.InStock,
		IsDeal:             payload.IsDeal,
		RawPayload:         payload.Metadata,
	}

	if prior == nil {
		result.PreviousPrice = payload.Price
		result.PreviouslyAvailable = payload.InStock
		return result
	}

	result.PreviousPrice = prior.CurrentPrice
	result.PreviouslyAvailable = prior.CurrentlyAvailable
	result.PriceChangeAmount = payload.Price.Sub(prior.CurrentPrice)
	result.PriceChanged = !result.PriceChangeAmount.IsZero()
	result.AvailabilityChanged = prior.CurrentlyAvailable != payload.InStock

	if prior.CurrentPrice.IsPositive() {
		result.PriceChangePercentage = payload.Price.PercentChangeFrom(prior.CurrentPrice)
	}
	return result
}

// evaluateTriggers applies the ordered alert conditions: availability
// changes take precedence, then price-drop thresholds, then lowest-ever
// (which overrides priceDrop), then deal as a fallback.
func (a *Analyzer) evaluateTriggers(product *domain.Product, cfg *domain.MonitoringConfig, result *domain.ObservationResult, payload domain.ObservationPayload) domain.AlertTrigger {
	if result.PreviouslyAvailable && !result.CurrentlyAvailable {
		return domain.TriggerOutOfStock
	}
	if !result.PreviouslyAvailable && result.CurrentlyAvailable {
		return domain.TriggerBackInStock
	}

	priceDropped := result.PriceChangeAmount.IsNegative()
	trigger := domain.TriggerNone
	if priceDropped && a.meetsDropThreshold(cfg, result) {
		trigger = domain.TriggerPriceDrop
	}

	if product.LastCheckedAt != nil && !payload.Price.GreaterThan(product.LowestEver) {
		return domain.TriggerLowestPriceEver
	}

	if trigger != domain.TriggerNone {
		return trigger
	}

	if payload.IsDeal {
		return domain.TriggerDeal
	}
	return domain.TriggerNone
}

func (a *Analyzer) meetsDropThreshold(cfg *domain.MonitoringConfig, result *domain.ObservationResult) bool {
	if cfg.NotifyOnAnyChange {
		return true
	}
	absDrop := money.Zero.Sub(result.PriceChangeAmount)
	if cfg.PriceThresholdAbs.IsPositive() && !absDrop.LessThan(cfg.PriceThresholdAbs) {
		return true
	}
	if cfg.PriceThresholdPct > 0 {
		pctDrop := money.Zero.Sub(result.PriceChangePercentage)
		if pctDrop.Float64() >= cfg.PriceThresholdPct {
			return true
		}
	}
	return false
}

func (a *Analyzer) buildEvent(product *domain.Product, result *domain.ObservationResult, payload domain.ObservationPayload, now time.Time) *domain.Event {
	fields := map[string]interface{}{
		"title":                 product.Title,
		"currentPrice":          result.CurrentPrice.Float64(),
		"previousPrice":         result.PreviousPrice.Float64(),
		"priceChangeAmount":     result.PriceChangeAmount.Float64(),
		"priceChangePercentage": result.PriceChangePercentage.Float64(),
		"currentlyAvailable":    result.CurrentlyAvailable,
		"isDeal":                payload.IsDeal,
		"observationId":         result.ID,
	}
	return domain.NewEvent(domain.EventTypeForTrigger(result.Trigger), product.ID, fields)
}
