// Package ruleengine implements the Alert Rule Engine (C6): it matches
// Events against user-defined AlertRules, evaluates each rule's boolean
// Condition tree, elevates priority by event salience, and requests
// notification delivery on every enabled channel.
package ruleengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "github.com/DimaJoyti/priceguard/internal/alerts/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// Clock abstracts wall time so tests can control "now" without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RuleRepository resolves the active rules a given Event type may match.
type RuleRepository interface {
	ActiveByType(ctx context.Context, ruleType domain.EventType) ([]*alerts.AlertRule, error)
}

// AlertRepository persists triggered Alerts.
type AlertRepository interface {
	Save(ctx context.Context, alert *alerts.Alert) error
}

// NotificationRequester is the Notification Pipeline's inbound port: one
// call per (alert, enabled channel). The pipeline itself decides
// immediate vs. batched delivery from the alert's elevated priority and
// the user's preferences.
type NotificationRequester interface {
	RequestDelivery(ctx context.Context, alert *alerts.Alert, channel string) error
}

// Engine evaluates Events against AlertRules and produces Alerts.
type Engine struct {
	rules    RuleRepository
	alerts   AlertRepository
	notifier NotificationRequester
	clock    Clock
	logger   *zap.Logger
}

func New(rules RuleRepository, alertRepo AlertRepository, notifier NotificationRequester, logger *zap.Logger) *Engine {
	return &Engine{
		rules:    rules,
		alerts:   alertRepo,
		notifier: notifier,
		clock:    SystemClock{},
		logger:   logger.Named("ruleengine"),
	}
}

// Handle implements eventbus.Handler: it is the Rule Engine's bus
// subscription callback.
func (e *Engine) Handle(ctx context.Context, event *domain.Event) error {
	_, err := e.Evaluate(ctx, event)
	return err
}

// Evaluate filters active rules by type and product scope, evaluates
// each one's condition tree, and for every match creates an Alert and
// requests delivery on the rule's enabled channels. Returns the Alerts
// created.
func (e *Engine) Evaluate(ctx context.Context, event *domain.Event) ([]*alerts.Alert, error) {
	candidates, err := e.rules.ActiveByType(ctx, event.Type)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: load rules for type %s: %w", event.Type, err)
	}

	var triggered []*alerts.Alert
	for _, rule := range candidates {
		if !rule.Matches(event) {
			continue
		}
		if !evaluateCondition(rule.Condition, event.Fields) {
			continue
		}

		alert := e.buildAlert(rule, event)
		if err := e.alerts.Save(ctx, alert); err != nil {
			e.logger.Error("failed to persist alert", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		triggered = append(triggered, alert)

		for _, channel := range rule.EnabledChannels() {
			if err := e.notifier.RequestDelivery(ctx, alert, channel); err != nil {
				e.logger.Error("failed to request delivery",
					zap.String("alert_id", alert.ID), zap.String("channel", channel), zap.Error(err))
			}
		}
	}

	e.logger.Info("evaluated event",
		zap.String("type", string(event.Type)),
		zap.Int("rules_considered", len(candidates)),
		zap.Int("triggered", len(triggered)))
	return triggered, nil
}

// buildAlert creates an Alert from a matched rule, applying priority
// elevation by event salience before the message is rendered.
func (e *Engine) buildAlert(rule *alerts.AlertRule, event *domain.Event) *alerts.Alert {
	priority := elevatePriority(rule.Priority, event)
	return &alerts.Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		UserID:    rule.UserID,
		ProductID: event.ProductID,
		Message:   renderMessage(event),
		Priority:  priority,
		EventType: event.Type,
		Fields:    event.Fields,
		CreatedAt: e.clock.Now(),
	}
}

// elevatePriority boosts priority by event salience: price drops of >=20%
// add +2, >=10% add +1 (clamped to 10), and lowestPriceEver forces priority
// to 10.
func elevatePriority(base int, event *domain.Event) int {
	if event.Type == domain.EventLowestPriceEver {
		return 10
	}
	if event.Type != domain.EventPriceDrop {
		return base
	}

	pct, ok := event.Fields["priceChangePercentage"].(float64)
	if !ok {
		return base
	}
	if pct < 0 {
		pct = -pct
	}

	priority := base
	switch {
	case pct >= 20:
		priority += 2
	case pct >= 10:
		priority += 1
	}
	if priority > 10 {
		priority = 10
	}
	return priority
}
